// state/events.go
package state

import "time"

// Event 驱动状态机的事件
type Event interface {
	OccurredAt() time.Time
	Name() string
}

// Start 房主开始游戏
type Start struct {
	PlayerID string
	At       time.Time
}

// Place 玩家在某个格子填入数字
type Place struct {
	PlayerID string
	Row, Col int
	Digit    int
	At       time.Time
}

// Tick 时钟事件，用于检查超时
type Tick struct {
	At time.Time
}

// Departed 玩家已离开（已从 currentMembers 移除）
type Departed struct {
	PlayerID string
	At       time.Time
}

func (e Start) OccurredAt() time.Time    { return e.At }
func (e Place) OccurredAt() time.Time    { return e.At }
func (e Tick) OccurredAt() time.Time     { return e.At }
func (e Departed) OccurredAt() time.Time { return e.At }

func (Start) Name() string    { return "start" }
func (Place) Name() string    { return "place" }
func (Tick) Name() string     { return "tick" }
func (Departed) Name() string { return "departed" }
