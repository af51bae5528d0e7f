package state

import (
	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/scoring"
)

// place handles a digit entered by a player during an active round. A
// correct digit is written to the player's board; a wrong one costs a life
// and is discarded.
func place(r *models.Room, e Place) (Outcome, error) {
	var out Outcome
	if PhaseOf(r) != PhaseActive {
		return out, ErrGameNotActive
	}
	mem, ok := r.CurrentMembers[e.PlayerID]
	if !ok {
		return out, ErrNotMember
	}
	if !mem.Alive() {
		return out, ErrEliminated
	}
	if e.Row < 0 || e.Row > 8 || e.Col < 0 || e.Col > 8 || e.Digit < 1 || e.Digit > 9 {
		return out, ErrInvalidMove
	}
	if r.Board[e.Row][e.Col] != 0 {
		return out, ErrGivenCell
	}

	if e.Digit == r.Solution[e.Row][e.Col] {
		mem.GameBoard[e.Row][e.Col] = e.Digit
		out.Correct = true
	} else {
		mem.RemainingLives--
		out.LifeLost = true
		out.Eliminated = mem.RemainingLives == 0
	}
	r.CurrentMembers[e.PlayerID] = mem
	return out, nil
}

// end closes the round and records the result. Archived members count as
// forfeits.
func end(r *models.Room) {
	res := scoring.ComputeResult(r.CurrentMembers, r.Puzzle())
	for id := range r.MemberHistory {
		if _, ok := res.Scores[id]; !ok {
			res.Scores[id] = -1
		}
	}
	r.IsActive = false
	r.GameEnded = true
	r.GameResults = &res
}

func solved(m models.Member, p models.Puzzle) bool {
	return scoring.Solved(m, p)
}
