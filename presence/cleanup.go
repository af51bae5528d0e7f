// presence/cleanup.go
package presence

import (
	"context"
	"errors"

	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/monitor"
	"github.com/wfunc/sudokuarena/persistence"
	"github.com/wfunc/sudokuarena/room"
	"github.com/wfunc/sudokuarena/roomstore"
	"github.com/wfunc/sudokuarena/state"
)

// Cleanup 处理玩家非正常离开：归档、移出、通知，并按 ≤1 规则结束回合
type Cleanup struct {
	rooms   *room.Service
	store   roomstore.Store
	db      persistence.Database
	metrics *monitor.Metrics
}

func NewCleanup(rooms *room.Service, store roomstore.Store, db persistence.Database, metrics *monitor.Metrics) *Cleanup {
	return &Cleanup{rooms: rooms, store: store, db: db, metrics: metrics}
}

// Depart archives playerID out of roomID. A player who is not a current
// member is ignored.
func (c *Cleanup) Depart(ctx context.Context, roomID, playerID string) (state.Outcome, error) {
	var (
		name     string
		departed bool
	)
	archive := func(r *models.Room) error {
		departed = false
		m, ok := r.CurrentMembers[playerID]
		if !ok {
			return nil
		}
		departed = true
		name = m.MemberName
		r.MemberHistory[playerID] = m
		delete(r.CurrentMembers, playerID)
		if r.CreatorID == playerID {
			r.CreatorID = nextCreator(r.CurrentMembers)
		}
		return nil
	}

	now := c.rooms.Now()
	r, out, err := c.rooms.Apply(ctx, roomID, archive, state.Departed{PlayerID: playerID, At: now})
	if err != nil {
		if errors.Is(err, models.ErrRoomNotFound) {
			return state.Outcome{}, nil
		}
		c.metrics.PersistenceFailed("depart")
		logger.Log.Warnw("presence cleanup failed", "room", roomID, "player", playerID, "error", err)
		return state.Outcome{}, err
	}
	if !departed {
		return out, nil
	}

	if name == "" {
		name = playerID
	}
	msg := models.NewNotification(name+" left the room", playerID, now)
	if err := c.store.AppendChat(ctx, roomID, msg); err != nil {
		logger.Log.Warnw("append leave notification failed", "room", roomID, "error", err)
	}
	if err := c.db.SetMemberCount(ctx, roomID, len(r.CurrentMembers)); err != nil && !errors.Is(err, models.ErrRoomNotFound) {
		c.metrics.PersistenceFailed("set_member_count")
		logger.Log.Warnw("mirror member count failed", "room", roomID, "error", err)
	}
	logger.Log.Infow("player departed", "room", roomID, "player", playerID, "remaining", len(r.CurrentMembers), "ended", out.Ended)
	return out, nil
}

// nextCreator picks the member who joined earliest; ties break on id.
func nextCreator(members map[string]models.Member) string {
	best := ""
	var bestAt int64
	for id, m := range members {
		if best == "" || m.JoinedAt < bestAt || (m.JoinedAt == bestAt && id < best) {
			best, bestAt = id, m.JoinedAt
		}
	}
	return best
}
