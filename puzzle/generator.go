// puzzle/generator.go
package puzzle

import (
	"math/rand"
	"sync"
	"time"

	"github.com/wfunc/sudokuarena/models"
)

// DefaultBlankProbability is the chance that any single cell is removed
// from the solution when deriving the playable grid.
const DefaultBlankProbability = 0.7

// Generator produces solved grids and playable puzzles. No minimum clue
// count or uniqueness is enforced.
type Generator struct {
	rng   *rand.Rand
	blank float64
	mu    sync.Mutex
}

// NewGenerator returns a generator seeded from the clock.
func NewGenerator() *Generator {
	return NewSeededGenerator(time.Now().UnixNano(), DefaultBlankProbability)
}

// NewSeededGenerator makes generation reproducible for a given seed.
func NewSeededGenerator(seed int64, blank float64) *Generator {
	if blank < 0 || blank > 1 {
		blank = DefaultBlankProbability
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), blank: blank}
}

// Generate builds a fresh solution and carves the playable grid out of it.
func (g *Generator) Generate() models.Puzzle {
	g.mu.Lock()
	defer g.mu.Unlock()

	var solution models.Grid
	g.fillFirstRow(&solution)
	fill(&solution, 1, 0)
	g.shuffleBands(&solution)
	g.shuffleStacks(&solution)

	return models.Puzzle{Grid: g.carve(solution), Solution: solution}
}

func (g *Generator) fillFirstRow(s *models.Grid) {
	digits := g.rng.Perm(9)
	for c, d := range digits {
		s[0][c] = d + 1
	}
}

// fill completes the grid from (row, col) onwards, trying 1..9 in order.
func fill(s *models.Grid, row, col int) bool {
	if row == 9 {
		return true
	}
	if col == 9 {
		return fill(s, row+1, 0)
	}
	if s[row][col] != 0 {
		return fill(s, row, col+1)
	}
	for v := 1; v <= 9; v++ {
		if allowed(s, row, col, v) {
			s[row][col] = v
			if fill(s, row, col+1) {
				return true
			}
			s[row][col] = 0
		}
	}
	return false
}

func allowed(s *models.Grid, r, c, v int) bool {
	for i := 0; i < 9; i++ {
		if s[r][i] == v || s[i][c] == v {
			return false
		}
	}
	br, bc := (r/3)*3, (c/3)*3
	for dr := 0; dr < 3; dr++ {
		for dc := 0; dc < 3; dc++ {
			if s[br+dr][bc+dc] == v {
				return false
			}
		}
	}
	return true
}

// shuffleBands permutes the three rows inside each horizontal band.
func (g *Generator) shuffleBands(s *models.Grid) {
	for band := 0; band < 9; band += 3 {
		perm := g.rng.Perm(3)
		rows := [3][9]int{s[band], s[band+1], s[band+2]}
		for i, p := range perm {
			s[band+i] = rows[p]
		}
	}
}

// shuffleStacks permutes the three columns inside each vertical stack.
func (g *Generator) shuffleStacks(s *models.Grid) {
	for stack := 0; stack < 9; stack += 3 {
		perm := g.rng.Perm(3)
		for r := 0; r < 9; r++ {
			cols := [3]int{s[r][stack], s[r][stack+1], s[r][stack+2]}
			for i, p := range perm {
				s[r][stack+i] = cols[p]
			}
		}
	}
}

func (g *Generator) carve(solution models.Grid) models.Grid {
	grid := solution
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if g.rng.Float64() < g.blank {
				grid[i][j] = 0
			}
		}
	}
	return grid
}
