// membership/manager.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/sudokuarena/logger"
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/monitor"
	"github.com/wfunc/sudokuarena/persistence"
	"github.com/wfunc/sudokuarena/roomstore"
)

// ErrInvalidMaxMember is returned by CreateRoom for a limit outside 2..10.
var ErrInvalidMaxMember = fmt.Errorf("max members must be between %d and %d", models.MinMembers, models.MaxMembers)

const codeAttempts = 5

// PuzzleSource 生成新题目
type PuzzleSource interface {
	Generate() models.Puzzle
}

// Manager 处理房间创建、容量校验与玩家入场
type Manager struct {
	store      roomstore.Store
	db         persistence.Database
	puzzles    PuzzleSource
	metrics    *monitor.Metrics
	baseURL    string
	totalLives int
	now        func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithMetrics(metrics *monitor.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithBaseURL(url string) Option {
	return func(m *Manager) { m.baseURL = url }
}

func WithTotalLives(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.totalLives = n
		}
	}
}

func NewManager(store roomstore.Store, db persistence.Database, puzzles PuzzleSource, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		db:         db,
		puzzles:    puzzles,
		totalLives: models.TotalLives,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom registers a durable room record under a fresh room code.
func (m *Manager) CreateRoom(ctx context.Context, creator models.Identity, typ models.RoomType, maxMember int) (*models.RoomRecord, error) {
	if creator.ID == "" {
		return nil, models.ErrAuthRequired
	}
	if maxMember < models.MinMembers || maxMember > models.MaxMembers {
		return nil, ErrInvalidMaxMember
	}
	if typ != models.RoomPublic {
		typ = models.RoomPrivate
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := NewRoomCode()
		if err != nil {
			return nil, err
		}
		rec := &models.RoomRecord{
			ID:        uuid.NewString(),
			RoomCode:  code,
			CreatorID: creator.ID,
			CreatedAt: m.now(),
			Type:      typ,
			MaxMember: maxMember,
			IsActive:  true,
		}
		err = m.db.CreateRoomRecord(ctx, rec)
		if errors.Is(err, models.ErrRoomExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		logger.Log.Infow("room created", "code", code, "creator", creator.ID, "type", typ, "maxMember", maxMember)
		return rec, nil
	}
	return nil, fmt.Errorf("no free room code after %d attempts: %w", codeAttempts, models.ErrRoomExists)
}

// ShareLink returns the invite URL of a room.
func (m *Manager) ShareLink(code string) string {
	return ShareLink(m.baseURL, code)
}

// ValidateRoom checks the durable record and puts the player on its roster.
func (m *Manager) ValidateRoom(ctx context.Context, code string, id models.Identity) (*models.RoomRecord, error) {
	if id.ID == "" {
		return nil, models.ErrAuthRequired
	}
	rec, err := m.db.JoinRoom(ctx, code, id.Joiner())
	if err != nil {
		m.metrics.AdmissionRejected(rejectReason(err))
		return nil, err
	}
	return rec, nil
}

// Join validates capacity, admits the player into the shared room and
// mirrors the member count back to the durable record.
func (m *Manager) Join(ctx context.Context, code string, id models.Identity) (*models.Room, error) {
	rec, err := m.ValidateRoom(ctx, code, id)
	if err != nil {
		return nil, err
	}
	room, err := m.admit(ctx, code, id, rec.MaxMember)
	if err != nil {
		return nil, err
	}
	if err := m.db.SetMemberCount(ctx, code, len(room.CurrentMembers)); err != nil {
		logger.Log.Warnw("mirror member count failed", "room", code, "error", err)
	}
	return room, nil
}

// Admit puts the player into the room, creating the room on first use.
func (m *Manager) Admit(ctx context.Context, roomID string, id models.Identity) (*models.Room, error) {
	return m.admit(ctx, roomID, id, 0)
}

func (m *Manager) admit(ctx context.Context, roomID string, id models.Identity, maxMembers int) (*models.Room, error) {
	if id.ID == "" {
		return nil, models.ErrAuthRequired
	}
	now := m.now()

	_, err := m.store.Get(ctx, roomID)
	switch {
	case errors.Is(err, models.ErrRoomNotFound):
		room := models.NewRoom(roomID, m.puzzles.Generate(), maxMembers, now)
		room.CreatorID = id.ID
		room.CurrentMembers[id.ID] = m.freshMember(id, room.Board, now)
		err = m.store.Create(ctx, room)
		if err == nil {
			logger.Log.Infow("room opened", "room", roomID, "creator", id.ID)
			m.announce(ctx, roomID, id, now)
			return room, nil
		}
		if !errors.Is(err, models.ErrRoomExists) {
			return nil, err
		}
		// lost the creation race, join the winner's room
	case err != nil:
		return nil, err
	}

	room, err := m.store.Update(ctx, roomID, func(r *models.Room) error {
		m.admitInto(r, id, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.announce(ctx, roomID, id, now)
	return room, nil
}

// admitInto restores an archived member, keeps a current one, or seeds a
// fresh member from the room's givens.
func (m *Manager) admitInto(r *models.Room, id models.Identity, now time.Time) {
	switch {
	case hasMember(r.CurrentMembers, id.ID):
	case hasMember(r.MemberHistory, id.ID):
		prev := r.MemberHistory[id.ID]
		if id.DisplayName != "" {
			prev.MemberName = id.DisplayName
		}
		if id.PhotoURL != "" {
			prev.PhotoURL = id.PhotoURL
		}
		r.CurrentMembers[id.ID] = prev
		delete(r.MemberHistory, id.ID)
	default:
		r.CurrentMembers[id.ID] = m.freshMember(id, r.Board, now)
	}
	if r.CreatorID == "" {
		r.CreatorID = id.ID
	}
}

func (m *Manager) freshMember(id models.Identity, board models.Grid, now time.Time) models.Member {
	return models.Member{
		MemberID:       id.ID,
		MemberName:     id.DisplayName,
		PhotoURL:       id.PhotoURL,
		GameBoard:      board,
		RemainingLives: m.totalLives,
		TotalLives:     m.totalLives,
		JoinedAt:       now.UnixMilli(),
	}
}

func (m *Manager) announce(ctx context.Context, roomID string, id models.Identity, now time.Time) {
	msg := models.NewNotification(displayName(id)+" joined the room", id.ID, now)
	if err := m.store.AppendChat(ctx, roomID, msg); err != nil {
		logger.Log.Warnw("append join notification failed", "room", roomID, "player", id.ID, "error", err)
	}
}

func hasMember(members map[string]models.Member, id string) bool {
	_, ok := members[id]
	return ok
}

func displayName(id models.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return id.ID
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrRoomFull):
		return "full"
	case errors.Is(err, models.ErrRoomExpired):
		return "expired"
	case errors.Is(err, models.ErrRoomNotFound):
		return "not_found"
	case errors.Is(err, models.ErrMaxMembersUndefined):
		return "max_undefined"
	case errors.Is(err, models.ErrAuthRequired):
		return "auth"
	default:
		return "error"
	}
}
