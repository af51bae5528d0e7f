// Package scoring turns member boards into progress figures and round results.
package scoring

import (
	"math"

	"github.com/wfunc/sudokuarena/models"
)

// Correct counts the non-given cells of board that match the solution.
func Correct(board models.Grid, p models.Puzzle) int {
	n := 0
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if p.Grid[i][j] != 0 {
				continue
			}
			if board[i][j] != 0 && board[i][j] == p.Solution[i][j] {
				n++
			}
		}
	}
	return n
}

// ComputeProgress returns the member's completion as an integer percentage
// of the cells that were blank in the original puzzle. A puzzle without
// blanks counts as complete.
func ComputeProgress(m models.Member, p models.Puzzle) int {
	free := 81 - p.Givens()
	if free <= 0 {
		return 100
	}
	return int(math.Round(float64(Correct(m.GameBoard, p)) * 100 / float64(free)))
}

// Solved reports whether every blank cell has been filled correctly.
func Solved(m models.Member, p models.Puzzle) bool {
	return Correct(m.GameBoard, p) == 81-p.Givens()
}

// ComputeResult scores every member and picks the winner among those with
// lives left. Eliminated members score -1. Several members sharing the top
// score make the round a tie; no eligible member means no winner.
func ComputeResult(members map[string]models.Member, p models.Puzzle) models.GameResult {
	res := models.GameResult{Winner: models.NoWinner, Scores: make(map[string]int, len(members))}
	best, leaders := -1, 0
	for id, m := range members {
		if !m.Alive() {
			res.Scores[id] = -1
			continue
		}
		score := Correct(m.GameBoard, p)
		res.Scores[id] = score
		switch {
		case score > best:
			best, leaders = score, 1
			res.Winner = id
		case score == best:
			leaders++
		}
	}
	if leaders > 1 {
		res.Winner = models.Tie
	}
	return res
}
