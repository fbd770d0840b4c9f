package grid

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/domain"
)

var (
	latNames = []string{"latitude", "lat", "y"}
	lonNames = []string{"longitude", "lon", "x"}
	// Coordinate and bookkeeping variables never hold field data.
	skipNames = map[string]bool{
		"latitude": true, "lat": true, "y": true,
		"longitude": true, "lon": true, "x": true,
		"time": true, "time_bnds": true, "level": true, "height": true,
	}
)

// NetCDFReader reads regular latitude/longitude fields from NetCDF files and
// keeps recently decoded fields in memory.
type NetCDFReader struct {
	cache *expirable.LRU[string, *interp.Grid2D]
}

// NewNetCDFReader creates a reader caching up to size fields for ttl.
func NewNetCDFReader(size int, ttl time.Duration) *NetCDFReader {
	if size <= 0 {
		size = 256
	}
	return &NetCDFReader{
		cache: expirable.NewLRU[string, *interp.Grid2D](size, nil, ttl),
	}
}

// Nearest implements Reader.
func (r *NetCDFReader) Nearest(ctx context.Context, path string, lat, lon float64, n int) ([]domain.GridNeighbor, error) {
	g, err := r.Field(ctx, path)
	if err != nil {
		return nil, err
	}
	return Nearest(g, lat, lon, n)
}

// Value implements Reader.
func (r *NetCDFReader) Value(ctx context.Context, path string, index int) (float64, error) {
	g, err := r.Field(ctx, path)
	if err != nil {
		return 0, err
	}
	return At(g, index)
}

// Field returns the decoded field stored in path.
func (r *NetCDFReader) Field(_ context.Context, path string) (*interp.Grid2D, error) {
	if g, ok := r.cache.Get(path); ok {
		return g, nil
	}
	g, err := LoadField(path)
	if err != nil {
		return nil, err
	}
	r.cache.Add(path, g)
	return g, nil
}

// LoadField reads the single data variable of a NetCDF file into a grid with
// ascending axes. Leading dimensions of length one (time, level) are
// accepted. Fill values become NaN.
func LoadField(path string) (*interp.Grid2D, error) {
	//nolint:gosec // G304: path is built by the local cache from a file identity.
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	lat, err := readAxis(nc, latNames)
	if err != nil {
		return nil, fmt.Errorf("failed to read latitude: %w", err)
	}
	lon, err := readAxis(nc, lonNames)
	if err != nil {
		return nil, fmt.Errorf("failed to read longitude: %w", err)
	}

	v, err := findDataVar(nc, len(lat), len(lon))
	if err != nil {
		return nil, err
	}

	flat, err := readFloat64s(v, len(lat)*len(lon))
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	applyPacking(v, flat)

	values := make([][]float64, len(lat))
	for i := range values {
		values[i] = flat[i*len(lon) : (i+1)*len(lon)]
	}

	// wgrib2 writes north-to-south rows for some grids.
	if len(lat) > 1 && lat[0] > lat[len(lat)-1] {
		for i, j := 0, len(lat)-1; i < j; i, j = i+1, j-1 {
			lat[i], lat[j] = lat[j], lat[i]
			values[i], values[j] = values[j], values[i]
		}
	}

	g := &interp.Grid2D{X: lon, Y: lat, Values: values}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid in %s: %w", path, err)
	}
	return g, nil
}

func readAxis(nc netcdf.Dataset, names []string) ([]float64, error) {
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		n, err := varLen(v, 1)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		return readFloat64s(v, n)
	}
	return nil, fmt.Errorf("variable not found (tried: %v)", names)
}

// findDataVar returns the first variable shaped [1..., nLat, nLon].
func findDataVar(nc netcdf.Dataset, nLat, nLon int) (netcdf.Var, error) {
	nvars, err := nc.NVars()
	if err != nil {
		return netcdf.Var{}, fmt.Errorf("failed to count variables: %w", err)
	}
	for i := 0; i < nvars; i++ {
		v := nc.VarN(i)
		name, err := v.Name()
		if err != nil || skipNames[name] {
			continue
		}
		dims, err := v.Dims()
		if err != nil || len(dims) < 2 {
			continue
		}
		lens := make([]uint64, len(dims))
		for j, d := range dims {
			if lens[j], err = d.Len(); err != nil {
				break
			}
		}
		if err != nil {
			continue
		}
		k := len(lens)
		if lens[k-2] != uint64(nLat) || lens[k-1] != uint64(nLon) {
			continue
		}
		leading := true
		for _, l := range lens[:k-2] {
			leading = leading && l == 1
		}
		if leading {
			return v, nil
		}
	}
	return netcdf.Var{}, fmt.Errorf("no [lat, lon] data variable of shape [%d, %d]", nLat, nLon)
}

func varLen(v netcdf.Var, rank int) (int, error) {
	dims, err := v.Dims()
	if err != nil {
		return 0, fmt.Errorf("failed to get dimensions: %w", err)
	}
	if len(dims) != rank {
		return 0, fmt.Errorf("expected %dD variable, got %dD", rank, len(dims))
	}
	n, err := dims[0].Len()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// readFloat64s reads total elements of v, converting numeric types.
func readFloat64s(v netcdf.Var, total int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	out := make([]float64, total)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}

// applyPacking replaces fill values with NaN and applies scale_factor and
// add_offset.
func applyPacking(v netcdf.Var, data []float64) {
	fv, hasFill := getAttrFloat(v, "_FillValue")
	if !hasFill {
		fv, hasFill = getAttrFloat(v, "missing_value")
	}
	scale, hasScale := getAttrFloat(v, "scale_factor")
	offset, _ := getAttrFloat(v, "add_offset")

	for i, x := range data {
		if hasFill && x == fv {
			data[i] = math.NaN()
			continue
		}
		if hasScale && scale != 0 {
			x *= scale
		}
		data[i] = x + offset
	}
}

// getAttrFloat returns a numeric attribute as float64.
func getAttrFloat(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if n, err := a.Len(); err != nil || n == 0 {
		return 0, false
	}
	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	buf32 := make([]float32, 1)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	bufi := make([]int32, 1)
	if err := a.ReadInt32s(bufi); err == nil {
		return float64(bufi[0]), true
	}
	return 0, false
}
