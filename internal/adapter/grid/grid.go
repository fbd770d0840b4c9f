// Package grid decodes single-level model fields and answers nearest-point
// queries against them.
package grid

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/domain"
)

// Reader provides nearest-neighbor search and point reads on decoded fields.
type Reader interface {
	// Nearest returns n grid points around (lat, lon), ascending by distance
	// in km. For n <= 4 they are corners of the enclosing cell, as with
	// ecCodes find_nearest; see the package-level Nearest.
	Nearest(ctx context.Context, path string, lat, lon float64, n int) ([]domain.GridNeighbor, error)
	// Value returns the field value at a flat index returned by Nearest.
	Value(ctx context.Context, path string, index int) (float64, error)
}

// FieldReader is a Reader that can also return whole decoded fields.
type FieldReader interface {
	Reader
	Field(ctx context.Context, path string) (*interp.Grid2D, error)
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	toRad := func(x float64) float64 { return x * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// normalizeLon360 maps arbitrary degree longitudes into the [0, 360) range.
func normalizeLon360(lon float64) float64 {
	lon = math.Mod(lon, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon
}

// toGridLon expresses lon in the convention of a longitude axis.
func toGridLon(axis []float64, lon float64) float64 {
	if axis[len(axis)-1] > 180 {
		return normalizeLon360(lon)
	}
	return domain.NormalizeLon180(lon)
}

// Nearest returns the n points nearest to (lat, lon) within the smallest
// window of rings around the enclosing cell that holds n points. For n <= 4
// that window is the cell itself, so a point just across a cell edge is not
// returned even when it is closer than the opposite corner. Flat indices are
// row-major: index = latIdx*len(g.X) + lonIdx.
func Nearest(g *interp.Grid2D, lat, lon float64, n int) ([]domain.GridNeighbor, error) {
	if n < 1 {
		return nil, fmt.Errorf("neighbor count must be positive, got %d", n)
	}
	lon = toGridLon(g.X, lon)
	xi, yi, err := g.Locate(lon, lat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOutsideDomain, err)
	}

	nx, ny := len(g.X), len(g.Y)
	if n > nx*ny {
		n = nx * ny
	}

	// Grow a window around the containing cell until it holds n points.
	var out []domain.GridNeighbor
	for r := 1; ; r++ {
		x0, x1 := max(xi-r+1, 0), min(xi+r, nx-1)
		y0, y1 := max(yi-r+1, 0), min(yi+r, ny-1)
		if (x1-x0+1)*(y1-y0+1) < n {
			continue
		}
		out = out[:0]
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				out = append(out, domain.GridNeighbor{
					Index:    y*nx + x,
					Distance: HaversineKm(lat, lon, g.Y[y], g.X[x]),
					Lat:      g.Y[y],
					Lon:      g.X[x],
				})
			}
		}
		break
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out[:n], nil
}

// At returns the value at a flat index.
func At(g *interp.Grid2D, index int) (float64, error) {
	nx := len(g.X)
	if index < 0 || index >= nx*len(g.Y) {
		return 0, fmt.Errorf("grid index %d out of range", index)
	}
	v := g.Values[index/nx][index%nx]
	if math.IsNaN(v) {
		return 0, fmt.Errorf("missing value at grid index %d", index)
	}
	return v, nil
}
