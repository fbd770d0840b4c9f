package domain

import (
	"fmt"
	"math"
)

// LevelColumn is the sequence of half-level heights (meters) at one grid
// index, ordered by half-level number. ICON columns decrease with index.
type LevelColumn []float64

// FullLevels returns the midpoints of consecutive half levels.
func (c LevelColumn) FullLevels() FullLevelColumn {
	if len(c) < 2 {
		return nil
	}
	full := make(FullLevelColumn, len(c)-1)
	for i := range full {
		full[i] = (c[i] + c[i+1]) / 2
	}
	return full
}

// FullLevelColumn holds full-level heights; element i is model level i+1.
type FullLevelColumn []float64

// Altitude returns the height of the 1-based level.
func (c FullLevelColumn) Altitude(level int) float64 {
	return c[level-1]
}

// LevelPair is the result of resolving an altitude against a column.
type LevelPair struct {
	Nearest     int // 1-based.
	Neighbor    int // 1-based.
	NearestAlt  float64
	NeighborAlt float64
}

// Brackets reports whether alt lies between the two level heights.
func (p LevelPair) Brackets(alt float64) bool {
	lo, hi := math.Min(p.NearestAlt, p.NeighborAlt), math.Max(p.NearestAlt, p.NeighborAlt)
	return alt >= lo && alt <= hi
}

// ResolveLevel finds the full level closest to alt and a neighbor level on
// the other side of alt. At the first and last level the neighbor is forced
// inward.
func ResolveLevel(column FullLevelColumn, alt float64) (LevelPair, error) {
	n := len(column)
	if n < 2 {
		return LevelPair{}, fmt.Errorf("%w: column has %d full levels", ErrLevelResolution, n)
	}
	if math.IsNaN(alt) || math.IsInf(alt, 0) {
		return LevelPair{}, fmt.Errorf("%w: altitude must be finite, got %v", ErrInvalidPoint, alt)
	}

	nearest := 0
	best := math.Inf(1)
	for i, h := range column {
		if math.IsNaN(h) {
			return LevelPair{}, fmt.Errorf("%w: level %d height is NaN", ErrLevelResolution, i+1)
		}
		// Strict comparison keeps the first minimum.
		if d := math.Abs(h - alt); d < best {
			best = d
			nearest = i
		}
	}

	var neighbor int
	switch {
	case nearest == 0:
		neighbor = 1
	case nearest == n-1:
		neighbor = n - 2
	default:
		// Step toward alt. In a descending column "up" is the lower index.
		ascending := column[n-1] > column[0]
		up := nearest + 1
		down := nearest - 1
		if !ascending {
			up, down = down, up
		}
		if column[nearest] < alt {
			neighbor = up
		} else {
			neighbor = down
		}
	}

	return LevelPair{
		Nearest:     nearest + 1,
		Neighbor:    neighbor + 1,
		NearestAlt:  column[nearest],
		NeighborAlt: column[neighbor],
	}, nil
}
