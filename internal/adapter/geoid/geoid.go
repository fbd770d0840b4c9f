// Package geoid converts WGS84 ellipsoidal heights to heights above mean sea
// level using an EGM2008 geoid grid stored as NetCDF.
package geoid

import (
	"fmt"
	"math"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/pointcast/internal/adapter/interp"
)

// tileSize is the edge length in degrees of the subsets read from the file.
const tileSize = 4.0

type tileKey struct{ lat, lon int }

// Store provides geoid height lookups. Subsets of the global grid are read
// lazily per tile and kept for the lifetime of the store.
type Store struct {
	path  string
	mu    sync.Mutex
	axes  *axes
	tiles map[tileKey]*interp.Grid2D
}

type axes struct {
	lat, lon []float64
}

// NewStore creates a store backed by the EGM2008 file at path.
func NewStore(path string) *Store {
	return &Store{path: path, tiles: map[tileKey]*interp.Grid2D{}}
}

// Height returns the geoid undulation N at a location. Positive values mean
// the geoid lies above the ellipsoid.
func (s *Store) Height(lat, lon float64) (float64, error) {
	g, err := s.tile(lat, lon)
	if err != nil {
		return 0, fmt.Errorf("failed to load geoid grid: %w", err)
	}
	x := lon
	if g.X[len(g.X)-1] > 180 && x < 0 {
		x += 360
	}
	n, err := g.InterpolateAt(x, lat)
	if err != nil {
		return 0, fmt.Errorf("failed to interpolate geoid height: %w", err)
	}
	return n, nil
}

// Orthometric converts an ellipsoidal height h to a height above mean sea
// level: H = h - N.
func (s *Store) Orthometric(lat, lon, h float64) (float64, error) {
	n, err := s.Height(lat, lon)
	if err != nil {
		return 0, err
	}
	return h - n, nil
}

func (s *Store) tile(lat, lon float64) (*interp.Grid2D, error) {
	key := tileKey{
		lat: int(math.Floor(lat / tileSize)),
		lon: int(math.Floor(lon / tileSize)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.tiles[key]; ok {
		return g, nil
	}

	nc, err := netcdf.OpenFile(s.path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	if s.axes == nil {
		a, err := readAxes(nc)
		if err != nil {
			return nil, err
		}
		s.axes = a
	}

	// One degree of margin on every side keeps bilinear cells inside the tile.
	lat0 := float64(key.lat)*tileSize - 1
	lon0 := float64(key.lon)*tileSize - 1
	g, err := s.readSubset(nc, lat0, lat0+tileSize+2, lon0, lon0+tileSize+2)
	if err != nil {
		return nil, err
	}
	s.tiles[key] = g
	return g, nil
}

func readAxes(nc netcdf.Dataset) (*axes, error) {
	lat, err := readNamed(nc, []string{"lat", "latitude", "y"})
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	lon, err := readNamed(nc, []string{"lon", "longitude", "x"})
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}
	return &axes{lat: lat, lon: lon}, nil
}

func readNamed(nc netcdf.Dataset, names []string) ([]float64, error) {
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		dims, err := v.Dims()
		if err != nil || len(dims) != 1 {
			continue
		}
		n, err := dims[0].Len()
		if err != nil {
			return nil, err
		}
		data := make([]float64, n)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, fmt.Errorf("variable not found (tried: %v)", names)
}

func (s *Store) readSubset(nc netcdf.Dataset, latMin, latMax, lonMin, lonMax float64) (*interp.Grid2D, error) {
	lats, lons := s.axes.lat, s.axes.lon
	if lons[len(lons)-1] > 180 && lonMin < 0 {
		lonMin += 360
		lonMax += 360
	}

	la0, la1 := span(lats, latMin, latMax)
	lo0, lo1 := span(lons, lonMin, lonMax)

	var dataVar netcdf.Var
	found := false
	for _, name := range []string{"geoid", "geoid_height", "N", "height", "z"} {
		if v, err := nc.Var(name); err == nil {
			dataVar, found = v, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("geoid data variable not found")
	}

	nLat, nLon := la1-la0, lo1-lo0
	flat := make([]float64, nLat*nLon)
	if err := dataVar.ReadFloat64Slice(flat,
		[]uint64{uint64(la0), uint64(lo0)},
		[]uint64{uint64(nLat), uint64(nLon)}); err != nil {
		return nil, fmt.Errorf("failed to read geoid subset: %w", err)
	}
	if scale, ok := attrFloat(dataVar, "scale_factor"); ok && scale != 0 {
		for i := range flat {
			flat[i] *= scale
		}
	}

	values := make([][]float64, nLat)
	for i := range values {
		values[i] = flat[i*nLon : (i+1)*nLon]
	}
	g := &interp.Grid2D{
		X:      append([]float64(nil), lons[lo0:lo1]...),
		Y:      append([]float64(nil), lats[la0:la1]...),
		Values: values,
	}
	if g.Y[0] > g.Y[len(g.Y)-1] {
		for i, j := 0, len(g.Y)-1; i < j; i, j = i+1, j-1 {
			g.Y[i], g.Y[j] = g.Y[j], g.Y[i]
			g.Values[i], g.Values[j] = g.Values[j], g.Values[i]
		}
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	return g, nil
}

// span returns the half-open index range of arr covering [lo, hi], with at
// least two points. arr may be ascending or descending.
func span(arr []float64, lo, hi float64) (int, int) {
	a, b := nearestIndex(arr, lo), nearestIndex(arr, hi)
	if a > b {
		a, b = b, a
	}
	start := clamp(a, 0, len(arr)-2)
	end := clamp(b+1, start+2, len(arr))
	return start, end
}

// nearestIndex returns the index of the element of arr closest to target.
func nearestIndex(arr []float64, target float64) int {
	best := 0
	for i := range arr {
		if math.Abs(arr[i]-target) < math.Abs(arr[best]-target) {
			best = i
		}
	}
	return best
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func attrFloat(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if n, err := a.Len(); err != nil || n == 0 {
		return 0, false
	}
	buf := make([]float64, 1)
	if err := a.ReadFloat64s(buf); err != nil {
		return 0, false
	}
	return buf[0], true
}
