package server

import (
	"errors"

	"github.com/wfunc/sudokuarena/membership"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/room"
	"github.com/wfunc/sudokuarena/state"
)

var errBadRequest = errors.New("malformed request payload")

var errorCodes = []struct {
	err  error
	code string
}{
	{models.ErrAuthRequired, "auth_required"},
	{models.ErrRoomNotFound, "room_not_found"},
	{models.ErrRoomExpired, "room_expired"},
	{models.ErrRoomFull, "room_full"},
	{models.ErrMaxMembersUndefined, "max_members_undefined"},
	{models.ErrConcurrencyConflict, "concurrency_conflict"},
	{membership.ErrInvalidMaxMember, "invalid_max_members"},
	{room.ErrEmptyMessage, "invalid_message"},
	{state.ErrNotCreator, "not_creator"},
	{state.ErrNotEnoughMembers, "not_enough_members"},
	{state.ErrTransitionNotAllowed, "transition_not_allowed"},
	{state.ErrGameNotActive, "game_not_active"},
	{state.ErrNotMember, "not_member"},
	{state.ErrEliminated, "eliminated"},
	{state.ErrGivenCell, "given_cell"},
	{state.ErrInvalidMove, "invalid_move"},
	{errBadRequest, "bad_request"},
}

// errorCode 把领域错误映射为客户端可识别的错误码
func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	var pe *models.PersistenceError
	if errors.As(err, &pe) {
		return "persistence"
	}
	return "internal"
}
