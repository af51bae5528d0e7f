// broadcast/broadcast.go
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/monitor"
	"github.com/wfunc/sudokuarena/network"
	"github.com/wfunc/sudokuarena/roomstore"
	"github.com/wfunc/sudokuarena/scoring"
	"github.com/wfunc/sudokuarena/session"
	"github.com/wfunc/sudokuarena/state"
)

// 快照中最多携带的聊天条数
const snapshotChatLimit = 100

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToUsers(playerIDs []string, msgID uint16, data []byte) error
}

// RoomSnapshot 推送给客户端的房间视图，附带每个玩家的进度
type RoomSnapshot struct {
	models.Room
	Phase    state.Phase    `json:"phase"`
	Progress map[string]int `json:"progress"`
}

// NewSnapshot builds the client view of r.
func NewSnapshot(r models.Room) RoomSnapshot {
	p := r.Puzzle()
	progress := make(map[string]int, len(r.CurrentMembers))
	for id, m := range r.CurrentMembers {
		progress[id] = scoring.ComputeProgress(m, p)
	}
	if n := len(r.Chat); n > snapshotChatLimit {
		r.Chat = r.Chat[n-snapshotChatLimit:]
	}
	return RoomSnapshot{Room: r, Phase: state.PhaseOf(&r), Progress: progress}
}

type watch struct {
	sub  roomstore.Subscription
	refs int
}

// 基于房间的广播器：每个房间在本实例只订阅一次存储
type RoomBroadcaster struct {
	store          roomstore.Store
	sessionManager *session.Manager
	metrics        *monitor.Metrics

	mutex   sync.Mutex
	watches map[string]*watch
}

func NewRoomBroadcaster(store roomstore.Store, sessionManager *session.Manager, metrics *monitor.Metrics) *RoomBroadcaster {
	return &RoomBroadcaster{
		store:          store,
		sessionManager: sessionManager,
		metrics:        metrics,
		watches:        make(map[string]*watch),
	}
}

// Watch starts pushing snapshots of roomID to its sessions. Calls are
// reference counted; pair each with Unwatch. The subscription outlives the
// request that opened it.
func (b *RoomBroadcaster) Watch(roomID string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if w, ok := b.watches[roomID]; ok {
		w.refs++
		return nil
	}
	sub, err := b.store.Subscribe(context.Background(), roomID, func(r models.Room) {
		b.pushSnapshot(roomID, r)
	})
	if err != nil {
		return err
	}
	b.watches[roomID] = &watch{sub: sub, refs: 1}
	b.metrics.RoomOpened()
	return nil
}

func (b *RoomBroadcaster) Unwatch(roomID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	w, ok := b.watches[roomID]
	if !ok {
		return
	}
	w.refs--
	if w.refs > 0 {
		return
	}
	delete(b.watches, roomID)
	if err := w.sub.Unsubscribe(); err != nil {
		logger.Log.Warnf("unsubscribe room %s: %v", roomID, err)
	}
	b.metrics.RoomClosed()
}

// Watching 本实例正在推送的房间数
func (b *RoomBroadcaster) Watching() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.watches)
}

// Close 取消所有订阅
func (b *RoomBroadcaster) Close() {
	b.mutex.Lock()
	watches := b.watches
	b.watches = make(map[string]*watch)
	b.mutex.Unlock()
	for _, w := range watches {
		_ = w.sub.Unsubscribe()
	}
}

// SendSnapshot pushes r to one session.
func (b *RoomBroadcaster) SendSnapshot(s *session.Session, r models.Room) error {
	data, err := json.Marshal(NewSnapshot(r))
	if err != nil {
		return err
	}
	return s.Send(network.MsgTypeRoomState, data)
}

func (b *RoomBroadcaster) pushSnapshot(roomID string, r models.Room) {
	data, err := json.Marshal(NewSnapshot(r))
	if err != nil {
		logger.Log.Errorf("encode snapshot of room %s: %v", roomID, err)
		return
	}
	_ = b.BroadcastToRoom(roomID, network.MsgTypeRoomState, data)
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	for _, s := range b.sessionManager.InRoom(roomID) {
		if err := s.Send(msgID, data); err != nil {
			// 发送失败的连接由读循环负责清理
			logger.Log.Debugf("send %s to session %s failed: %v", network.MsgName(msgID), s.GetID(), err)
			continue
		}
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToUsers(playerIDs []string, msgID uint16, data []byte) error {
	for _, playerID := range playerIDs {
		for _, s := range b.sessionManager.GetByPlayerID(playerID) {
			if err := s.Send(msgID, data); err != nil {
				continue
			}
		}
	}
	return nil
}
