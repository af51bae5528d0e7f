// roomstore/store.go
package roomstore

import (
	"context"
	"encoding/json"

	"github.com/wfunc/sudokuarena/models"
)

// maxUpdateAttempts bounds the optimistic retry loop of Update.
const maxUpdateAttempts = 8

// Store 共享房间文档存储
type Store interface {
	// Get returns the room with its chat, or models.ErrRoomNotFound.
	Get(ctx context.Context, roomID string) (*models.Room, error)
	// Create writes a new room unless one already exists (models.ErrRoomExists).
	Create(ctx context.Context, room *models.Room) error
	// Update applies fn to the current document and commits the result only
	// if nobody else wrote in between; fn may run more than once. The chat
	// list is not loaded into the room passed to fn.
	Update(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error)
	// AppendChat atomically appends to the room's chat list.
	AppendChat(ctx context.Context, roomID string, msg models.ChatMessage) error
	// Subscribe calls handler with a fresh snapshot after every change.
	Subscribe(ctx context.Context, roomID string, handler func(models.Room)) (Subscription, error)
	Close() error
}

// Subscription 可取消的订阅
type Subscription interface {
	Unsubscribe() error
}

func encodeRoom(r *models.Room) ([]byte, error) {
	doc := *r
	doc.Chat = nil
	return json.Marshal(&doc)
}

func decodeRoom(raw []byte) (*models.Room, error) {
	var r models.Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &models.PersistenceError{Op: "decode room", Err: err}
	}
	if err := r.Validate(); err != nil {
		return nil, &models.PersistenceError{Op: "validate room", Err: err}
	}
	return &r, nil
}
