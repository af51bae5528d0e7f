// persistence/interface.go
package persistence

import (
	"context"
	"time"

	"github.com/wfunc/sudokuarena/models"
)

// Database 持久化房间记录与玩家账本
type Database interface {
	// CreateRoomRecord inserts a record; a taken room code is models.ErrRoomExists.
	CreateRoomRecord(ctx context.Context, rec *models.RoomRecord) error
	GetRoomRecord(ctx context.Context, code string) (*models.RoomRecord, error)
	// JoinRoom checks capacity and appends the joiner to the roster in one
	// transaction.
	JoinRoom(ctx context.Context, code string, j models.Joiner) (*models.RoomRecord, error)
	SetMemberCount(ctx context.Context, code string, n int) error
	// SaveGameResult records the result and deactivates the room unless a
	// result is already stored. saved reports whether this call wrote it.
	SaveGameResult(ctx context.Context, code string, res models.GameResult) (saved bool, err error)

	// EnsurePlayer inserts p if the user is unknown and returns the stored row.
	EnsurePlayer(ctx context.Context, p models.Player) (*models.Player, error)
	GetPlayer(ctx context.Context, userID string) (*models.Player, error)
	// AdjustCoins adds delta, refusing to go below zero.
	AdjustCoins(ctx context.Context, userID string, delta int64) (*models.Player, error)
	GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error)
	Close() error
}

// 单次查询超时
const queryTimeout = 5 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}
