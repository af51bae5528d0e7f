package room

import (
	"context"
	"time"

	"github.com/wfunc/sudokuarena/models"
)

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
}

// Ledger settles coins once a result has been recorded.
type Ledger interface {
	SettleStakes(ctx context.Context, res models.GameResult) error
}

// Scheduler 回合计时，由 timer.TimerManager 实现
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64) bool
}
