package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/sudokuarena/models"
)

// Memory 内存实现，用于开发和测试
type Memory struct {
	mu      sync.Mutex
	rooms   map[string]*models.RoomRecord // by room code
	players map[string]*models.Player
	games   []models.GameResult
}

func NewMemory() *Memory {
	return &Memory{
		rooms:   make(map[string]*models.RoomRecord),
		players: make(map[string]*models.Player),
	}
}

func copyRecord(r *models.RoomRecord) *models.RoomRecord {
	out := *r
	out.JoinedBy = append([]models.Joiner(nil), r.JoinedBy...)
	if r.GameResults != nil {
		res := *r.GameResults
		out.GameResults = &res
	}
	return &out
}

func (m *Memory) CreateRoomRecord(ctx context.Context, rec *models.RoomRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[rec.RoomCode]; ok {
		return models.ErrRoomExists
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.rooms[rec.RoomCode] = copyRecord(rec)
	return nil
}

func (m *Memory) GetRoomRecord(ctx context.Context, code string) (*models.RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[code]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return copyRecord(rec), nil
}

func (m *Memory) JoinRoom(ctx context.Context, code string, j models.Joiner) (*models.RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[code]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	if err := rec.AddJoiner(j); err != nil {
		return nil, err
	}
	return copyRecord(rec), nil
}

func (m *Memory) SetMemberCount(ctx context.Context, code string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[code]
	if !ok {
		return models.ErrRoomNotFound
	}
	rec.CurrentMembers = n
	return nil
}

func (m *Memory) SaveGameResult(ctx context.Context, code string, res models.GameResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[code]
	if !ok {
		return false, models.ErrRoomNotFound
	}
	if rec.GameResults != nil {
		return false, nil
	}
	rec.GameResults = &res
	rec.IsActive = false
	m.games = append(m.games, res)
	return true, nil
}

func (m *Memory) EnsurePlayer(ctx context.Context, p models.Player) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.players[p.UserID]; ok {
		out := *cur
		return &out, nil
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.players[p.UserID] = &p
	out := p
	return &out, nil
}

func (m *Memory) GetPlayer(ctx context.Context, userID string) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[userID]
	if !ok {
		return nil, models.ErrPlayerNotFound
	}
	out := *p
	return &out, nil
}

func (m *Memory) AdjustCoins(ctx context.Context, userID string, delta int64) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[userID]
	if !ok {
		return nil, models.ErrPlayerNotFound
	}
	if p.Coins+delta < 0 {
		return nil, models.ErrInsufficientCoins
	}
	p.Coins += delta
	p.UpdatedAt = time.Now()
	out := *p
	return &out, nil
}

func (m *Memory) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.PlayerStats{}
	for _, g := range m.games {
		stats.Tally(userID, g)
	}
	return stats, nil
}

func (m *Memory) Close() error {
	return nil
}
