package puzzle

import "github.com/wfunc/sudokuarena/models"

// ValidSolution reports whether every row, column and box of s is a
// permutation of 1..9.
func ValidSolution(s models.Grid) bool {
	for i := 0; i < 9; i++ {
		var row, col, box uint16
		for j := 0; j < 9; j++ {
			r := s[i][j]
			c := s[j][i]
			b := s[(i/3)*3+j/3][(i%3)*3+j%3]
			if !inRange(r) || !inRange(c) || !inRange(b) {
				return false
			}
			row |= 1 << r
			col |= 1 << c
			box |= 1 << b
		}
		const full = 0x3FE // bits 1..9
		if row != full || col != full || box != full {
			return false
		}
	}
	return true
}

// Consistent reports whether every given of p matches its solution.
func Consistent(p models.Puzzle) bool {
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if v := p.Grid[i][j]; v != 0 && v != p.Solution[i][j] {
				return false
			}
		}
	}
	return true
}

func inRange(v int) bool {
	return v >= 1 && v <= 9
}
