// Package interp provides the numeric kernels of the point estimator:
// inverse-distance weighting over the horizontal, vertical and temporal
// axes, and bilinear interpolation on regular grids.
package interp

import (
	"fmt"
	"math"
	"sort"
)

// GridCell represents a cell in a regular grid with four corner values.
type GridCell struct {
	// Corner coordinates (forming a rectangle).
	X0, X1 float64 // X boundaries (longitude).
	Y0, Y1 float64 // Y boundaries (latitude).

	// Values at the four corners:
	// V00: value at (X0, Y0).
	// V10: value at (X1, Y0).
	// V01: value at (X0, Y1).
	// V11: value at (X1, Y1).
	V00, V10, V01, V11 float64
}

// BilinearInterpolate performs bilinear interpolation within a grid cell.
// Formula:
//
//	f(x,y) ≈ (1-t)(1-u)f(x0,y0) + t(1-u)f(x1,y0) + (1-t)u*f(x0,y1) + tu*f(x1,y1)
//
// where:
//
//	t = (x - x0) / (x1 - x0)
//	u = (y - y0) / (y1 - y0)
func BilinearInterpolate(cell GridCell, x, y float64) (float64, error) {
	// Validate grid cell.
	if cell.X1 <= cell.X0 {
		return 0, fmt.Errorf("invalid grid cell: X1 must be > X0")
	}
	if cell.Y1 <= cell.Y0 {
		return 0, fmt.Errorf("invalid grid cell: Y1 must be > Y0")
	}

	// Check if point is within cell (with small tolerance for floating point).
	const epsilon = 1e-9
	if x < cell.X0-epsilon || x > cell.X1+epsilon {
		return 0, fmt.Errorf("x coordinate %.6f is outside grid cell [%.6f, %.6f]", x, cell.X0, cell.X1)
	}
	if y < cell.Y0-epsilon || y > cell.Y1+epsilon {
		return 0, fmt.Errorf("y coordinate %.6f is outside grid cell [%.6f, %.6f]", y, cell.Y0, cell.Y1)
	}

	t := (x - cell.X0) / (cell.X1 - cell.X0)
	u := (y - cell.Y0) / (cell.Y1 - cell.Y0)
	t = math.Max(0, math.Min(1, t))
	u = math.Max(0, math.Min(1, u))

	result := (1-t)*(1-u)*cell.V00 +
		t*(1-u)*cell.V10 +
		(1-t)*u*cell.V01 +
		t*u*cell.V11

	return result, nil
}

// cellFromNeighbors arranges four neighbor values into a GridCell. It fails
// unless the neighbors sit on exactly two longitudes and two latitudes.
func cellFromNeighbors(values, lons, lats []float64) (GridCell, bool) {
	if len(values) != 4 || len(lons) != 4 || len(lats) != 4 {
		return GridCell{}, false
	}
	xs := distinct(lons)
	ys := distinct(lats)
	if len(xs) != 2 || len(ys) != 2 {
		return GridCell{}, false
	}

	cell := GridCell{X0: xs[0], X1: xs[1], Y0: ys[0], Y1: ys[1]}
	seen := 0
	for i, v := range values {
		xi := lons[i] == xs[1]
		yi := lats[i] == ys[1]
		switch {
		case !xi && !yi:
			cell.V00 = v
			seen |= 1
		case xi && !yi:
			cell.V10 = v
			seen |= 2
		case !xi && yi:
			cell.V01 = v
			seen |= 4
		default:
			cell.V11 = v
			seen |= 8
		}
	}
	return cell, seen == 15
}

func distinct(v []float64) []float64 {
	out := append([]float64(nil), v...)
	sort.Float64s(out)
	n := 0
	for i, x := range out {
		if i == 0 || x != out[n-1] {
			out[n] = x
			n++
		}
	}
	return out[:n]
}

// Grid2D represents a regular 2D grid for interpolation.
type Grid2D struct {
	X      []float64   // X coordinates (longitudes).
	Y      []float64   // Y coordinates (latitudes).
	Values [][]float64 // Values[i][j] corresponds to (X[j], Y[i]).
}

// Validate checks if the grid is valid.
func (g *Grid2D) Validate() error {
	if len(g.X) < 2 {
		return fmt.Errorf("grid must have at least 2 X coordinates")
	}
	if len(g.Y) < 2 {
		return fmt.Errorf("grid must have at least 2 Y coordinates")
	}
	if len(g.Values) != len(g.Y) {
		return fmt.Errorf("number of value rows (%d) must match Y coordinates (%d)", len(g.Values), len(g.Y))
	}

	for i, row := range g.Values {
		if len(row) != len(g.X) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(g.X))
		}
	}

	// Check that coordinates are sorted and unique.
	for i := 1; i < len(g.X); i++ {
		if g.X[i] <= g.X[i-1] {
			return fmt.Errorf("X coordinates must be strictly increasing")
		}
	}
	for i := 1; i < len(g.Y); i++ {
		if g.Y[i] <= g.Y[i-1] {
			return fmt.Errorf("Y coordinates must be strictly increasing")
		}
	}

	return nil
}

// Locate returns the indices of the lower-left corner of the cell
// containing (x, y).
func (g *Grid2D) Locate(x, y float64) (int, int, error) {
	xIdx := cellIndex(g.X, x)
	if xIdx < 0 {
		return 0, 0, fmt.Errorf("x coordinate %.6f is outside grid range [%.6f, %.6f]", x, g.X[0], g.X[len(g.X)-1])
	}
	yIdx := cellIndex(g.Y, y)
	if yIdx < 0 {
		return 0, 0, fmt.Errorf("y coordinate %.6f is outside grid range [%.6f, %.6f]", y, g.Y[0], g.Y[len(g.Y)-1])
	}
	return xIdx, yIdx, nil
}

// cellIndex returns i such that axis[i] <= v <= axis[i+1], or -1.
func cellIndex(axis []float64, v float64) int {
	n := len(axis)
	if n < 2 || v < axis[0] || v > axis[n-1] {
		return -1
	}
	i := sort.SearchFloat64s(axis, v)
	if i > 0 && (i == n || axis[i] > v) {
		i--
	}
	if i > n-2 {
		i = n - 2
	}
	return i
}

// InterpolateAt performs bilinear interpolation at a given point.
func (g *Grid2D) InterpolateAt(x, y float64) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, fmt.Errorf("invalid grid: %w", err)
	}

	xIdx, yIdx, err := g.Locate(x, y)
	if err != nil {
		return 0, err
	}

	cell := GridCell{
		X0:  g.X[xIdx],
		X1:  g.X[xIdx+1],
		Y0:  g.Y[yIdx],
		Y1:  g.Y[yIdx+1],
		V00: g.Values[yIdx][xIdx],
		V10: g.Values[yIdx][xIdx+1],
		V01: g.Values[yIdx+1][xIdx],
		V11: g.Values[yIdx+1][xIdx+1],
	}

	return BilinearInterpolate(cell, x, y)
}
