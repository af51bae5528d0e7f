// room/service.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/monitor"
	"github.com/wfunc/sudokuarena/network"
	"github.com/wfunc/sudokuarena/persistence"
	"github.com/wfunc/sudokuarena/roomstore"
	"github.com/wfunc/sudokuarena/state"
)

const maxChatLength = 500

var ErrEmptyMessage = errors.New("chat message is empty or too long")

// Service 把状态机接到共享房间文档上：每个事件都在一次乐观更新中归约
type Service struct {
	store       roomstore.Store
	db          persistence.Database
	ledger      Ledger
	clock       Scheduler
	machine     state.Machine
	broadcaster Broadcaster
	metrics     *monitor.Metrics
	now         func() time.Time

	mutex  sync.Mutex
	timers map[string]int64 // roomID -> timer id
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

func WithGameDuration(d time.Duration) Option {
	return func(s *Service) { s.machine = state.NewMachine(d) }
}

func NewService(store roomstore.Store, db persistence.Database, ledger Ledger, clock Scheduler, opts ...Option) *Service {
	s := &Service{
		store:   store,
		db:      db,
		ledger:  ledger,
		clock:   clock,
		machine: state.NewMachine(models.GameDuration),
		now:     time.Now,
		timers:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now 服务使用的时钟
func (s *Service) Now() time.Time {
	return s.now()
}

// Apply runs mutate and then reduces ev inside one optimistic update of the
// room. Either may be nil. A round that ends here is finalized once.
func (s *Service) Apply(ctx context.Context, roomID string, mutate func(*models.Room) error, ev state.Event) (*models.Room, state.Outcome, error) {
	var out state.Outcome
	room, err := s.store.Update(ctx, roomID, func(r *models.Room) error {
		out = state.Outcome{}
		if mutate != nil {
			if err := mutate(r); err != nil {
				return err
			}
		}
		if ev == nil {
			return nil
		}
		next, o, err := s.machine.Apply(*r, ev)
		if err != nil {
			return err
		}
		*r = next
		out = o
		return nil
	})
	if err != nil {
		return nil, state.Outcome{}, err
	}
	if out.Ended {
		s.finalize(ctx, room, out.Cause)
	}
	return room, out, nil
}

// StartGame moves the room to ACTIVE and arms the round clock.
func (s *Service) StartGame(ctx context.Context, roomID, playerID string) (*models.Room, error) {
	room, _, err := s.Apply(ctx, roomID, nil, state.Start{PlayerID: playerID, At: s.now()})
	if err != nil {
		return nil, err
	}
	s.armClock(roomID, room.GameStartTime)
	logger.Log.Infow("game started", "room", roomID, "by", playerID, "members", len(room.CurrentMembers))
	return room, nil
}

// PlaceDigit reduces one cell entry of playerID.
func (s *Service) PlaceDigit(ctx context.Context, roomID, playerID string, row, col, digit int) (*models.Room, state.Outcome, error) {
	return s.Apply(ctx, roomID, nil, state.Place{
		PlayerID: playerID,
		Row:      row,
		Col:      col,
		Digit:    digit,
		At:       s.now(),
	})
}

// CheckClock ends the round if its time is up.
func (s *Service) CheckClock(ctx context.Context, roomID string) (state.Outcome, error) {
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		return state.Outcome{}, err
	}
	if state.PhaseOf(room) != state.PhaseActive {
		s.disarmClock(roomID)
		return state.Outcome{}, nil
	}
	_, out, err := s.Apply(ctx, roomID, nil, state.Tick{At: s.now()})
	return out, err
}

// SendChat appends a player message to the room chat.
func (s *Service) SendChat(ctx context.Context, roomID, playerID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxChatLength {
		return ErrEmptyMessage
	}
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if _, ok := room.CurrentMembers[playerID]; !ok {
		return state.ErrNotMember
	}
	return s.store.AppendChat(ctx, roomID, models.ChatMessage{
		Message:     text,
		MessageType: models.MessageTypeMessage,
		Time:        s.now().UTC().Format(time.RFC3339),
		SenderID:    playerID,
	})
}

func (s *Service) armClock(roomID string, startMs int64) {
	if s.clock == nil {
		return
	}
	end := time.UnixMilli(startMs).Add(s.machine.GameDuration)
	delay := end.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if id, ok := s.timers[roomID]; ok {
		s.clock.RemoveTimer(id)
	}
	s.timers[roomID] = s.clock.AddTimer(delay, 0, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.CheckClock(ctx, roomID); err != nil {
			logger.Log.Warnw("round clock check failed", "room", roomID, "error", err)
		}
	})
}

func (s *Service) disarmClock(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if id, ok := s.timers[roomID]; ok {
		if s.clock != nil {
			s.clock.RemoveTimer(id)
		}
		delete(s.timers, roomID)
	}
}

// finalize 写入持久化结果；只有条件写入成功的一方结算金币
func (s *Service) finalize(ctx context.Context, room *models.Room, cause state.Cause) {
	s.disarmClock(room.ID)
	s.metrics.RoundEnded(string(cause))
	if room.GameResults == nil {
		return
	}
	res := *room.GameResults
	logger.Log.Infow("game ended", "room", room.ID, "cause", cause, "winner", res.Winner, "scores", res.Scores)

	if s.broadcaster != nil {
		if data, err := json.Marshal(res); err == nil {
			_ = s.broadcaster.BroadcastToRoom(room.ID, network.MsgTypeGameEnd, data)
		}
	}

	saved, err := s.db.SaveGameResult(ctx, room.ID, res)
	if errors.Is(err, models.ErrRoomNotFound) {
		logger.Log.Debugw("no durable record for room", "room", room.ID)
		return
	}
	if err != nil {
		s.metrics.PersistenceFailed("save_game_result")
		logger.Log.Errorw("save game result failed", "room", room.ID, "error", err)
		return
	}
	if !saved || s.ledger == nil {
		return
	}
	if err := s.ledger.SettleStakes(ctx, res); err != nil {
		s.metrics.PersistenceFailed("settle_stakes")
		logger.Log.Errorw("settle stakes failed", "room", room.ID, "error", err)
	}
}
