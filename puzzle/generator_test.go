package puzzle

import (
	"testing"

	"github.com/wfunc/sudokuarena/models"
)

func TestGenerate_SolutionIsValid(t *testing.T) {
	g := NewSeededGenerator(12345, DefaultBlankProbability)
	for i := 0; i < 50; i++ {
		p := g.Generate()
		if !ValidSolution(p.Solution) {
			t.Fatalf("generation %d produced an invalid solution: %v", i, p.Solution)
		}
		if !Consistent(p) {
			t.Fatalf("generation %d has givens that disagree with the solution", i)
		}
	}
}

func TestGenerate_SeedIsReproducible(t *testing.T) {
	a := NewSeededGenerator(7, DefaultBlankProbability).Generate()
	b := NewSeededGenerator(7, DefaultBlankProbability).Generate()
	if a != b {
		t.Error("Expected identical puzzles for identical seeds")
	}
}

func TestGenerate_BlankProbabilityBounds(t *testing.T) {
	full := NewSeededGenerator(1, 0).Generate()
	if full.Givens() != 81 {
		t.Errorf("Expected 81 givens with blank probability 0, got %d", full.Givens())
	}

	empty := NewSeededGenerator(1, 1).Generate()
	if empty.Givens() != 0 {
		t.Errorf("Expected 0 givens with blank probability 1, got %d", empty.Givens())
	}
}

func TestValidSolution_RejectsDuplicates(t *testing.T) {
	p := NewSeededGenerator(99, DefaultBlankProbability).Generate()
	broken := p.Solution
	broken[0][0], broken[0][1] = broken[0][1], broken[0][0]
	if ValidSolution(broken) {
		t.Error("Swapping two cells of a row should break column uniqueness")
	}

	var zero models.Grid
	if ValidSolution(zero) {
		t.Error("An empty grid is not a valid solution")
	}
}

func TestConsistent_DetectsWrongGiven(t *testing.T) {
	p := NewSeededGenerator(3, 0).Generate()
	p.Grid[4][4] = p.Solution[4][4]%9 + 1
	if Consistent(p) {
		t.Error("A given that differs from the solution should be detected")
	}
}
