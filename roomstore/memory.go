package roomstore

import (
	"context"
	"sync"

	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/models"
)

// Memory keeps encoded room documents in process. It has the same
// revision and notification behaviour as the Redis store.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	chats  map[string][]models.ChatMessage
	subs   map[string]map[int]*memorySub
	nextID int
}

func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string][]byte),
		chats: make(map[string][]models.ChatMessage),
		subs:  make(map[string]map[int]*memorySub),
	}
}

func (m *Memory) Get(ctx context.Context, roomID string) (*models.Room, error) {
	m.mu.RLock()
	raw, ok := m.docs[roomID]
	chat := append([]models.ChatMessage(nil), m.chats[roomID]...)
	m.mu.RUnlock()
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	r, err := decodeRoom(raw)
	if err != nil {
		return nil, err
	}
	r.Chat = chat
	return r, nil
}

func (m *Memory) Create(ctx context.Context, room *models.Room) error {
	raw, err := encodeRoom(room)
	if err != nil {
		return models.Persistence("encode room", err)
	}
	m.mu.Lock()
	if _, ok := m.docs[room.ID]; ok {
		m.mu.Unlock()
		return models.ErrRoomExists
	}
	m.docs[room.ID] = raw
	m.mu.Unlock()
	m.notify(room.ID)
	return nil
}

func (m *Memory) Update(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.mu.RLock()
		raw, ok := m.docs[roomID]
		m.mu.RUnlock()
		if !ok {
			return nil, models.ErrRoomNotFound
		}
		room, err := decodeRoom(raw)
		if err != nil {
			return nil, err
		}
		base := room.Revision
		if err := fn(room); err != nil {
			return nil, err
		}
		room.Chat = nil
		room.Revision = base + 1
		enc, err := encodeRoom(room)
		if err != nil {
			return nil, models.Persistence("encode room", err)
		}

		m.mu.Lock()
		cur, err := decodeRoom(m.docs[roomID])
		if err != nil || cur.Revision != base {
			m.mu.Unlock()
			continue
		}
		m.docs[roomID] = enc
		m.mu.Unlock()
		m.notify(roomID)
		return room, nil
	}
	return nil, models.ErrConcurrencyConflict
}

func (m *Memory) AppendChat(ctx context.Context, roomID string, msg models.ChatMessage) error {
	m.mu.Lock()
	if _, ok := m.docs[roomID]; !ok {
		m.mu.Unlock()
		return models.ErrRoomNotFound
	}
	m.chats[roomID] = append(m.chats[roomID], msg)
	m.mu.Unlock()
	m.notify(roomID)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, roomID string, handler func(models.Room)) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	s := &memorySub{store: m, roomID: roomID, signal: make(chan struct{}, 1), cancel: cancel}

	m.mu.Lock()
	m.nextID++
	s.id = m.nextID
	if m.subs[roomID] == nil {
		m.subs[roomID] = make(map[int]*memorySub)
	}
	m.subs[roomID][s.id] = s
	m.mu.Unlock()

	go s.loop(subCtx, handler)
	return s, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]map[int]*memorySub)
	m.mu.Unlock()
	for _, byID := range subs {
		for _, s := range byID {
			s.cancel()
		}
	}
	return nil
}

// notify wakes every subscriber of roomID; pending signals coalesce.
func (m *Memory) notify(roomID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs[roomID] {
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}
}

type memorySub struct {
	id     int
	store  *Memory
	roomID string
	signal chan struct{}
	cancel context.CancelFunc
}

func (s *memorySub) loop(ctx context.Context, handler func(models.Room)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
			room, err := s.store.Get(ctx, s.roomID)
			if err != nil {
				logger.Log.Warnf("room %s snapshot failed: %v", s.roomID, err)
				continue
			}
			handler(*room)
		}
	}
}

func (s *memorySub) Unsubscribe() error {
	s.cancel()
	s.store.mu.Lock()
	delete(s.store.subs[s.roomID], s.id)
	s.store.mu.Unlock()
	return nil
}
