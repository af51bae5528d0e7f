// models/models.go
package models

import (
	"fmt"
	"time"
)

const (
	// TotalLives 每个玩家的初始生命数
	TotalLives = 5
	// GameDuration 一局游戏的时长
	GameDuration = 10 * time.Minute

	// Tie 平局时 GameResult.Winner 的取值
	Tie = "Tie"
	// NoWinner 没有任何存活玩家时的取值
	NoWinner = ""

	MessageTypeMessage      = "message"
	MessageTypeNotification = "notification"
)

// Grid 9x9 数独盘面，0 表示空格
type Grid [9][9]int

// Puzzle 生成器输出：完整解与挖空后的题面
type Puzzle struct {
	Grid     Grid `json:"grid"`
	Solution Grid `json:"solution"`
}

// Givens counts the non-empty cells of the puzzle grid.
func (p Puzzle) Givens() int {
	n := 0
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if p.Grid[i][j] != 0 {
				n++
			}
		}
	}
	return n
}

// Member 房间内玩家的状态
type Member struct {
	MemberID       string `json:"memberId"`
	MemberName     string `json:"memberName"`
	PhotoURL       string `json:"photoURL"`
	GameBoard      Grid   `json:"gameBoard"`
	RemainingLives int    `json:"remainingLives"`
	TotalLives     int    `json:"totalLives"`
	JoinedAt       int64  `json:"joinedAt"` // epoch-ms
}

// Alive reports whether the member still has lives left.
func (m Member) Alive() bool {
	return m.RemainingLives > 0
}

// ChatMessage 聊天记录，只追加
type ChatMessage struct {
	Message     string `json:"message"`
	MessageType string `json:"messageType"`
	Time        string `json:"time"` // ISO-8601
	SenderID    string `json:"senderId"`
}

// NewNotification builds a system notification stamped at t.
func NewNotification(text, senderID string, t time.Time) ChatMessage {
	return ChatMessage{
		Message:     text,
		MessageType: MessageTypeNotification,
		Time:        t.UTC().Format(time.RFC3339),
		SenderID:    senderID,
	}
}

// GameResult 一局游戏的结果，-1 分表示被淘汰
type GameResult struct {
	Winner string         `json:"winner"`
	Scores map[string]int `json:"scores"`
}

// Room 共享房间文档
type Room struct {
	ID             string            `json:"id"`
	CreatorID      string            `json:"creatorId"`
	IsActive       bool              `json:"isActive"`
	GameEnded      bool              `json:"gameEnded,omitempty"`
	GameStartTime  int64             `json:"gameStartTime,omitempty"` // epoch-ms
	Board          Grid              `json:"board"`
	Solution       Grid              `json:"solution"`
	CurrentMembers map[string]Member `json:"currentMembers"`
	MemberHistory  map[string]Member `json:"memberHistory"`
	Chat           []ChatMessage     `json:"chat,omitempty"`
	MaxMembers     int               `json:"maxMembers,omitempty"`
	CreatedAt      int64             `json:"createdAt"`
	GameResults    *GameResult       `json:"gameResults,omitempty"`
	Revision       int64             `json:"revision"`
}

// NewRoom seeds a room document from a freshly generated puzzle.
func NewRoom(id string, p Puzzle, maxMembers int, now time.Time) *Room {
	return &Room{
		ID:             id,
		Board:          p.Grid,
		Solution:       p.Solution,
		CurrentMembers: make(map[string]Member),
		MemberHistory:  make(map[string]Member),
		MaxMembers:     maxMembers,
		CreatedAt:      now.UnixMilli(),
	}
}

// Puzzle returns the original givens and solution of the room.
func (r *Room) Puzzle() Puzzle {
	return Puzzle{Grid: r.Board, Solution: r.Solution}
}

// AliveCount 剩余生命大于 0 的在场玩家数
func (r *Room) AliveCount() int {
	n := 0
	for _, m := range r.CurrentMembers {
		if m.Alive() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy; grids are arrays and copy by value.
func (r Room) Clone() Room {
	out := r
	out.CurrentMembers = make(map[string]Member, len(r.CurrentMembers))
	for k, v := range r.CurrentMembers {
		out.CurrentMembers[k] = v
	}
	out.MemberHistory = make(map[string]Member, len(r.MemberHistory))
	for k, v := range r.MemberHistory {
		out.MemberHistory[k] = v
	}
	if r.Chat != nil {
		out.Chat = append([]ChatMessage(nil), r.Chat...)
	}
	if r.GameResults != nil {
		res := GameResult{Winner: r.GameResults.Winner, Scores: make(map[string]int, len(r.GameResults.Scores))}
		for k, v := range r.GameResults.Scores {
			res.Scores[k] = v
		}
		out.GameResults = &res
	}
	return out
}

// Validate checks a document read from the shared store. Missing maps are
// normalised to empty ones; anything else malformed is rejected.
func (r *Room) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("room: missing id")
	}
	if r.CurrentMembers == nil {
		r.CurrentMembers = make(map[string]Member)
	}
	if r.MemberHistory == nil {
		r.MemberHistory = make(map[string]Member)
	}
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if v := r.Solution[i][j]; v < 1 || v > 9 {
				return fmt.Errorf("room %s: solution[%d][%d]=%d out of range", r.ID, i, j, v)
			}
			if v := r.Board[i][j]; v != 0 && v != r.Solution[i][j] {
				return fmt.Errorf("room %s: board[%d][%d]=%d disagrees with solution", r.ID, i, j, v)
			}
		}
	}
	for id, m := range r.CurrentMembers {
		if err := m.validate(id); err != nil {
			return fmt.Errorf("room %s: %w", r.ID, err)
		}
	}
	for id, m := range r.MemberHistory {
		if err := m.validate(id); err != nil {
			return fmt.Errorf("room %s history: %w", r.ID, err)
		}
	}
	return nil
}

func (m Member) validate(key string) error {
	if m.MemberID != key {
		return fmt.Errorf("member key %q holds id %q", key, m.MemberID)
	}
	if m.RemainingLives < 0 || m.RemainingLives > m.TotalLives {
		return fmt.Errorf("member %s: lives %d/%d", key, m.RemainingLives, m.TotalLives)
	}
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if v := m.GameBoard[i][j]; v < 0 || v > 9 {
				return fmt.Errorf("member %s: cell [%d][%d]=%d", key, i, j, v)
			}
		}
	}
	return nil
}
