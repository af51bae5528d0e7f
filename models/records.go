// models/records.go
package models

import "time"

// RoomType 房间类型
type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"

	MinMembers = 2
	MaxMembers = 10
)

// Joiner joinedBy 名单中的一项
type Joiner struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	PhotoURL string `json:"photoURL"`
}

// RoomRecord 持久化的房间记录，通过 RoomCode 查询
type RoomRecord struct {
	ID             string      `json:"id"`
	RoomCode       string      `json:"roomCode"`
	CreatorID      string      `json:"creatorId"`
	CreatedAt      time.Time   `json:"createdAt"`
	Type           RoomType    `json:"type"`
	MaxMember      int         `json:"maxMember"`
	CurrentMembers int         `json:"currentMembers"`
	JoinedBy       []Joiner    `json:"joinedBy"`
	IsActive       bool        `json:"isActive"`
	GameResults    *GameResult `json:"gameResults,omitempty"`
}

// HasJoined reports whether userID is already on the roster.
func (r *RoomRecord) HasJoined(userID string) bool {
	for _, j := range r.JoinedBy {
		if j.UserID == userID {
			return true
		}
	}
	return false
}

// AddJoiner applies the capacity rule: an inactive record is expired, a full
// roster refuses newcomers, and players already listed always pass.
func (r *RoomRecord) AddJoiner(j Joiner) error {
	if !r.IsActive {
		return ErrRoomExpired
	}
	if r.MaxMember <= 0 {
		return ErrMaxMembersUndefined
	}
	if r.HasJoined(j.UserID) {
		return nil
	}
	if len(r.JoinedBy) >= r.MaxMember {
		return ErrRoomFull
	}
	r.JoinedBy = append(r.JoinedBy, j)
	return nil
}

// Identity 已认证用户
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

// Joiner converts the identity into a roster entry.
func (i Identity) Joiner() Joiner {
	return Joiner{UserID: i.ID, UserName: i.DisplayName, PhotoURL: i.PhotoURL}
}

// Player 玩家账本数据
type Player struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	PhotoURL  string    `json:"photo_url"`
	Coins     int64     `json:"coins"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlayerStats 玩家统计信息
type PlayerStats struct {
	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Ties       int `json:"ties"`
}

// Tally folds one recorded result into the stats of userID.
func (s *PlayerStats) Tally(userID string, res GameResult) {
	if _, ok := res.Scores[userID]; !ok {
		return
	}
	s.TotalGames++
	switch res.Winner {
	case userID:
		s.Wins++
	case Tie:
		if res.Scores[userID] >= 0 {
			s.Ties++
		} else {
			s.Losses++
		}
	default:
		s.Losses++
	}
}
