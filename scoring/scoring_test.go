package scoring

import (
	"testing"

	"github.com/wfunc/sudokuarena/models"
	"github.com/wfunc/sudokuarena/puzzle"
)

// testPuzzle returns a puzzle with exactly `free` blank cells, taken in
// row-major order.
func testPuzzle(t *testing.T, free int) models.Puzzle {
	t.Helper()
	p := puzzle.NewSeededGenerator(42, 0).Generate()
	for k := 0; k < free; k++ {
		p.Grid[k/9][k%9] = 0
	}
	return p
}

// fillCorrect writes n correct values into the blank cells of a copy of the grid.
func fillCorrect(p models.Puzzle, n int) models.Grid {
	board := p.Grid
	for i := 0; i < 9 && n > 0; i++ {
		for j := 0; j < 9 && n > 0; j++ {
			if board[i][j] == 0 {
				board[i][j] = p.Solution[i][j]
				n--
			}
		}
	}
	return board
}

func TestComputeProgress_Monotonic(t *testing.T) {
	p := testPuzzle(t, 40)
	m := models.Member{GameBoard: p.Grid, RemainingLives: 5, TotalLives: 5}

	last := ComputeProgress(m, p)
	if last != 0 {
		t.Fatalf("Expected 0%% progress on an untouched board, got %d", last)
	}
	for k := 0; k < 40; k++ {
		m.GameBoard[k/9][k%9] = p.Solution[k/9][k%9]
		got := ComputeProgress(m, p)
		if got < last {
			t.Fatalf("Progress decreased from %d to %d after a correct move", last, got)
		}
		last = got
	}
	if last != 100 {
		t.Errorf("Expected 100%% after filling every blank, got %d", last)
	}
}

func TestComputeProgress_IgnoresWrongValuesAndGivens(t *testing.T) {
	p := testPuzzle(t, 10)
	m := models.Member{GameBoard: p.Grid}
	m.GameBoard[0][0] = p.Solution[0][0]%9 + 1
	if got := ComputeProgress(m, p); got != 0 {
		t.Errorf("Expected wrong values to count for nothing, got %d", got)
	}

	m.GameBoard = fillCorrect(p, 5)
	if got := ComputeProgress(m, p); got != 50 {
		t.Errorf("Expected 50%%, got %d", got)
	}
}

func TestComputeProgress_NoBlanks(t *testing.T) {
	p := testPuzzle(t, 0)
	if got := ComputeProgress(models.Member{GameBoard: p.Grid}, p); got != 100 {
		t.Errorf("Expected a puzzle without blanks to be complete, got %d", got)
	}
}

func TestComputeResult_EliminatedLoses(t *testing.T) {
	p := testPuzzle(t, 40)
	members := map[string]models.Member{
		"A": {MemberID: "A", GameBoard: fillCorrect(p, 40), RemainingLives: 5, TotalLives: 5},
		"B": {MemberID: "B", GameBoard: fillCorrect(p, 40), RemainingLives: 0, TotalLives: 5},
	}

	res := ComputeResult(members, p)
	if res.Winner != "A" {
		t.Errorf("Expected winner A, got %q", res.Winner)
	}
	if res.Scores["A"] != 40 || res.Scores["B"] != -1 {
		t.Errorf("Expected scores {A:40 B:-1}, got %v", res.Scores)
	}
}

func TestComputeResult_Tie(t *testing.T) {
	p := testPuzzle(t, 40)
	members := map[string]models.Member{
		"A": {MemberID: "A", GameBoard: fillCorrect(p, 10), RemainingLives: 5, TotalLives: 5},
		"B": {MemberID: "B", GameBoard: fillCorrect(p, 10), RemainingLives: 5, TotalLives: 5},
	}

	res := ComputeResult(members, p)
	if res.Winner != models.Tie {
		t.Errorf("Expected a tie, got %q", res.Winner)
	}
	if res.Scores["A"] != 10 || res.Scores["B"] != 10 {
		t.Errorf("Expected both scores to be 10, got %v", res.Scores)
	}
}

func TestComputeResult_TieBelowLeaderIsNotATie(t *testing.T) {
	p := testPuzzle(t, 40)
	members := map[string]models.Member{
		"A": {MemberID: "A", GameBoard: fillCorrect(p, 12), RemainingLives: 2, TotalLives: 5},
		"B": {MemberID: "B", GameBoard: fillCorrect(p, 3), RemainingLives: 5, TotalLives: 5},
		"C": {MemberID: "C", GameBoard: fillCorrect(p, 3), RemainingLives: 5, TotalLives: 5},
	}

	if res := ComputeResult(members, p); res.Winner != "A" {
		t.Errorf("Expected A to win outright, got %q", res.Winner)
	}
}

func TestComputeResult_NoEligibleMembers(t *testing.T) {
	p := testPuzzle(t, 40)
	members := map[string]models.Member{
		"A": {MemberID: "A", RemainingLives: 0, TotalLives: 5},
	}

	res := ComputeResult(members, p)
	if res.Winner != models.NoWinner {
		t.Errorf("Expected no winner, got %q", res.Winner)
	}
	if res.Scores["A"] != -1 {
		t.Errorf("Expected -1 for the eliminated member, got %d", res.Scores["A"])
	}
}

func TestSolved(t *testing.T) {
	p := testPuzzle(t, 3)
	m := models.Member{GameBoard: fillCorrect(p, 2)}
	if Solved(m, p) {
		t.Error("Board with a blank left should not be solved")
	}
	m.GameBoard = fillCorrect(p, 3)
	if !Solved(m, p) {
		t.Error("Board with every blank filled correctly should be solved")
	}
}
