package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/sudokuarena/models"
)

// Phase 房间生命周期阶段
type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// Cause 结束原因
type Cause string

const (
	CauseNone        Cause = ""
	CauseTimeUp      Cause = "time_up"
	CauseElimination Cause = "elimination"
	CauseSolved      Cause = "solved"
)

var (
	// ErrTransitionNotAllowed is returned when a state transition is not allowed.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	ErrNotCreator           = errors.New("only the room creator can start the game")
	ErrNotEnoughMembers     = errors.New("at least two members are required to start")
	ErrGameNotActive        = errors.New("game is not active")
	ErrNotMember            = errors.New("player is not a member of the room")
	ErrEliminated           = errors.New("player has no lives left")
	ErrGivenCell            = errors.New("cell is part of the original puzzle")
	ErrInvalidMove          = errors.New("invalid cell or digit")
)

// Outcome 一次事件处理的附带结果
type Outcome struct {
	Correct    bool
	LifeLost   bool
	Eliminated bool
	Ended      bool
	Cause      Cause
}

// PhaseOf derives the lifecycle phase from the room document.
func PhaseOf(r *models.Room) Phase {
	switch {
	case r.GameEnded:
		return PhaseEnded
	case r.IsActive:
		return PhaseActive
	default:
		return PhaseLobby
	}
}

// 允许的阶段转换
var transitions = map[Phase]map[Phase]bool{
	PhaseLobby:  {PhaseActive: true},
	PhaseActive: {PhaseEnded: true},
}

func canTransition(from, to Phase) bool {
	return transitions[from][to]
}

// Machine holds the round rules. Apply is pure: it never mutates its input.
type Machine struct {
	GameDuration time.Duration
	MinMembers   int
}

// NewMachine returns a machine with the standard rules.
func NewMachine(duration time.Duration) Machine {
	if duration <= 0 {
		duration = models.GameDuration
	}
	return Machine{GameDuration: duration, MinMembers: models.MinMembers}
}

// Apply reduces ev against r and returns the next room document.
func (m Machine) Apply(r models.Room, ev Event) (models.Room, Outcome, error) {
	next := r.Clone()
	var (
		out Outcome
		err error
	)

	switch e := ev.(type) {
	case Start:
		err = m.start(&next, e)
	case Place:
		out, err = place(&next, e)
	case Tick, Departed:
		// only the end conditions below apply
	default:
		err = fmt.Errorf("unknown event %T", ev)
	}
	if err != nil {
		return r, Outcome{}, err
	}

	if PhaseOf(&next) == PhaseActive {
		if cause := m.endCause(&next, ev.OccurredAt()); cause != CauseNone {
			end(&next)
			out.Ended = true
			out.Cause = cause
		}
	}
	return next, out, nil
}

func (m Machine) start(r *models.Room, e Start) error {
	if !canTransition(PhaseOf(r), PhaseActive) {
		return ErrTransitionNotAllowed
	}
	if r.CreatorID == "" || e.PlayerID != r.CreatorID {
		return ErrNotCreator
	}
	if len(r.CurrentMembers) < m.MinMembers {
		return ErrNotEnoughMembers
	}
	r.IsActive = true
	r.GameStartTime = e.At.UnixMilli()
	return nil
}

// endCause checks the three ways an active round ends, clock first.
func (m Machine) endCause(r *models.Room, now time.Time) Cause {
	if r.GameStartTime > 0 && !now.IsZero() &&
		now.UnixMilli()-r.GameStartTime >= m.GameDuration.Milliseconds() {
		return CauseTimeUp
	}
	if len(r.CurrentMembers) == 1 {
		for _, mem := range r.CurrentMembers {
			if mem.Alive() && solved(mem, r.Puzzle()) {
				return CauseSolved
			}
		}
	}
	if r.AliveCount() <= 1 {
		return CauseElimination
	}
	return CauseNone
}
