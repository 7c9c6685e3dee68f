package grid

import (
	"fmt"

	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// Cell is a lattice position, rows counting north and columns east of the destination
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// Ring is the Chebyshev distance of the cell from the destination cell
func (c Cell) Ring() int { return max(abs(c.Row), abs(c.Col)) }

// Neighbors returns the eight surrounding cells
func (c Cell) Neighbors() []Cell {
	out := make([]Cell, 0, 8)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			out = append(out, Cell{Row: c.Row + dr, Col: c.Col + dc})
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Lattice is a square lattice of points spacingFeet apart, laid out around
// an origin with a local equirectangular projection
type Lattice struct {
	Origin      utils.Coordinate
	SpacingFeet float64
}

// Coordinate returns the location of a cell
func (l Lattice) Coordinate(c Cell) utils.Coordinate {
	return utils.OffsetFeet(l.Origin, float64(c.Row)*l.SpacingFeet, float64(c.Col)*l.SpacingFeet)
}

// lessCell orders cells row-major for deterministic output
func lessCell(a, b Cell) int {
	if a.Row != b.Row {
		return a.Row - b.Row
	}
	return a.Col - b.Col
}
