package models

import (
	"errors"
	"fmt"
)

var (
	ErrAuthRequired        = errors.New("authentication required")
	ErrRoomNotFound        = errors.New("no matching room found")
	ErrRoomExpired         = errors.New("room expired")
	ErrRoomFull            = errors.New("room has reached the maximum number of members")
	ErrMaxMembersUndefined = errors.New("max members limit is not defined for the room")
	ErrRoomExists          = errors.New("room already exists")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrInsufficientCoins   = errors.New("insufficient coins")
)

// PersistenceError wraps any failure of a store read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err unless it is nil or already a domain error.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) || isDomain(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func isDomain(err error) bool {
	for _, target := range []error{
		ErrRoomNotFound, ErrRoomExpired, ErrRoomFull, ErrMaxMembersUndefined,
		ErrRoomExists, ErrConcurrencyConflict, ErrPlayerNotFound, ErrInsufficientCoins,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
