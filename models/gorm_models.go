// models/gorm_models.go
package models

import "time"

// RoomRecordModel 持久化房间记录表
type RoomRecordModel struct {
	ID             string      `gorm:"primaryKey;type:varchar(64)"`
	RoomCode       string      `gorm:"uniqueIndex;type:varchar(6);not null"`
	CreatorID      string      `gorm:"not null"`
	Type           string      `gorm:"type:varchar(16);not null"`
	MaxMember      int         `gorm:"not null"`
	CurrentMembers int         `gorm:"default:0"`
	JoinedBy       []Joiner    `gorm:"type:jsonb;serializer:json"`
	IsActive       bool        `gorm:"default:true"`
	GameResults    *GameResult `gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (RoomRecordModel) TableName() string {
	return "rooms"
}

func (m *RoomRecordModel) Record() *RoomRecord {
	return &RoomRecord{
		ID:             m.ID,
		RoomCode:       m.RoomCode,
		CreatorID:      m.CreatorID,
		CreatedAt:      m.CreatedAt,
		Type:           RoomType(m.Type),
		MaxMember:      m.MaxMember,
		CurrentMembers: m.CurrentMembers,
		JoinedBy:       append([]Joiner(nil), m.JoinedBy...),
		IsActive:       m.IsActive,
		GameResults:    m.GameResults,
	}
}

// NewRoomRecordModel converts a record for insertion.
func NewRoomRecordModel(r *RoomRecord) *RoomRecordModel {
	return &RoomRecordModel{
		ID:             r.ID,
		RoomCode:       r.RoomCode,
		CreatorID:      r.CreatorID,
		Type:           string(r.Type),
		MaxMember:      r.MaxMember,
		CurrentMembers: r.CurrentMembers,
		JoinedBy:       r.JoinedBy,
		IsActive:       r.IsActive,
		GameResults:    r.GameResults,
		CreatedAt:      r.CreatedAt,
	}
}

// PlayerModel 玩家账本表
type PlayerModel struct {
	UserID    string `gorm:"primaryKey;type:varchar(128)"`
	Name      string `gorm:"type:varchar(128)"`
	PhotoURL  string
	Coins     int64 `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PlayerModel) TableName() string {
	return "players"
}

func (m *PlayerModel) Player() *Player {
	return &Player{
		UserID:    m.UserID,
		Name:      m.Name,
		PhotoURL:  m.PhotoURL,
		Coins:     m.Coins,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// GameRecordModel 游戏记录表，每局一条
type GameRecordModel struct {
	ID        uint           `gorm:"primaryKey"`
	RoomCode  string         `gorm:"index;type:varchar(6);not null"`
	Winner    string         `gorm:"type:varchar(128)"`
	Scores    map[string]int `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time      `gorm:"index"`
}

func (GameRecordModel) TableName() string {
	return "game_records"
}

func (m *GameRecordModel) Result() GameResult {
	return GameResult{Winner: m.Winner, Scores: m.Scores}
}
