package interp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultEpsilon is added to zero distances before inverting them.
const DefaultEpsilon = 1e-3

// Sample is a known value and its distance from the query along one axis.
type Sample struct {
	Value    float64
	Distance float64
}

// Weights returns the normalized inverse-distance weights of samples.
// Zero distances are replaced by epsilon so the weight stays finite.
func Weights(samples []Sample, epsilon float64) ([]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to weight")
	}
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	w := make([]float64, len(samples))
	for i, s := range samples {
		d := s.Distance
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return nil, fmt.Errorf("sample %d has invalid distance %v", i, d)
		}
		if d == 0 {
			d = epsilon
		}
		w[i] = 1 / d
	}
	floats.Scale(1/floats.Sum(w), w)
	return w, nil
}

// IDW returns the inverse-distance weighted mean of samples.
func IDW(samples []Sample, epsilon float64) (float64, error) {
	w, err := Weights(samples, epsilon)
	if err != nil {
		return 0, err
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		if math.IsNaN(s.Value) {
			return 0, fmt.Errorf("sample %d value is NaN", i)
		}
		values[i] = s.Value
	}
	return floats.Dot(values, w), nil
}

// Strategy selects how the horizontal and vertical axes are combined.
type Strategy string

const (
	// StrategySequential collapses the horizontal axis, then the vertical,
	// then the temporal axis, one IDW pass each.
	StrategySequential Strategy = "sequential"
	// StrategyCombined weights every horizontal/vertical sample in one pass
	// by its 3-D Euclidean distance, then applies the temporal pass. It is
	// not numerically equivalent to StrategySequential.
	StrategyCombined Strategy = "combined"
)

// HorizontalMethod selects the kernel of the horizontal pass.
type HorizontalMethod string

const (
	// HorizontalIDW weights every neighbor by inverse ground distance.
	HorizontalIDW HorizontalMethod = "idw"
	// HorizontalNearest takes the value of the closest neighbor.
	HorizontalNearest HorizontalMethod = "nearest"
	// HorizontalBilinear applies the bilinear kernel when the neighbors form
	// a grid cell and falls back to IDW otherwise.
	HorizontalBilinear HorizontalMethod = "bilinear"
)

// ParseStrategy validates a strategy name. Empty means sequential.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategySequential:
		return StrategySequential, nil
	case StrategyCombined:
		return StrategyCombined, nil
	}
	return "", fmt.Errorf("unknown interpolation strategy %q", s)
}

// ParseHorizontalMethod validates a horizontal method name. Empty means idw.
func ParseHorizontalMethod(s string) (HorizontalMethod, error) {
	switch HorizontalMethod(s) {
	case "", HorizontalIDW:
		return HorizontalIDW, nil
	case HorizontalNearest, HorizontalBilinear:
		return HorizontalMethod(s), nil
	}
	return "", fmt.Errorf("unknown horizontal method %q", s)
}

// Stencil holds every sample gathered for one variable at one query point.
//
// Values is indexed [time][level][neighbor]. Level 0 is the nearest level
// and level 1, when present, the bracketing neighbor level.
type Stencil struct {
	Values [][][]float64

	// Horizontal distances in km, one per neighbor, ascending.
	Horizontal []float64
	// Neighbor coordinates, used by the bilinear kernel.
	NeighborLat []float64
	NeighborLon []float64

	// LevelAlts[level][neighbor] is the full-level height in meters.
	LevelAlts [][]float64

	// Temporal distances in hours, one per time sample.
	Temporal []float64

	Lat, Lon, Alt float64
}

func (s *Stencil) validate() error {
	if len(s.Values) == 0 {
		return fmt.Errorf("stencil has no time samples")
	}
	if len(s.Temporal) != len(s.Values) {
		return fmt.Errorf("stencil has %d time samples but %d temporal distances", len(s.Values), len(s.Temporal))
	}
	nh := len(s.Horizontal)
	if nh == 0 {
		return fmt.Errorf("stencil has no horizontal neighbors")
	}
	for t, levels := range s.Values {
		if len(levels) == 0 || len(levels) != len(s.LevelAlts) {
			return fmt.Errorf("time sample %d has %d levels, expected %d", t, len(levels), len(s.LevelAlts))
		}
		for l, row := range levels {
			if len(row) != nh {
				return fmt.Errorf("time sample %d level %d has %d values, expected %d", t, l, len(row), nh)
			}
		}
	}
	for l, alts := range s.LevelAlts {
		if len(alts) != nh {
			return fmt.Errorf("level %d has %d altitudes, expected %d", l, len(alts), nh)
		}
	}
	return nil
}

// Interpolator combines stencil samples into one estimate.
type Interpolator struct {
	Strategy   Strategy
	Horizontal HorizontalMethod
	Epsilon    float64
}

// Estimate collapses the stencil into a single value.
func (ip Interpolator) Estimate(s Stencil) (float64, error) {
	if err := s.validate(); err != nil {
		return 0, fmt.Errorf("invalid stencil: %w", err)
	}

	perTime := make([]float64, len(s.Values))
	for t, levels := range s.Values {
		var v float64
		var err error
		if ip.Strategy == StrategyCombined {
			v, err = ip.Combined3DPass(levels, &s)
		} else {
			v, err = ip.sequential(levels, &s)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to interpolate time sample %d: %w", t, err)
		}
		perTime[t] = v
	}

	return ip.TemporalPass(perTime, s.Temporal)
}

func (ip Interpolator) sequential(levels [][]float64, s *Stencil) (float64, error) {
	perLevel := make([]float64, len(levels))
	alts := make([]float64, len(levels))
	for l, row := range levels {
		v, err := ip.HorizontalPass(row, s)
		if err != nil {
			return 0, fmt.Errorf("horizontal pass at level %d: %w", l, err)
		}
		perLevel[l] = v
		// Heights of the column under the nearest neighbor.
		alts[l] = s.LevelAlts[l][0]
	}
	return ip.VerticalPass(perLevel, alts, s.Alt)
}

// HorizontalPass collapses one value per neighbor into one value.
func (ip Interpolator) HorizontalPass(values []float64, s *Stencil) (float64, error) {
	switch ip.Horizontal {
	case HorizontalNearest:
		return values[0], nil
	case HorizontalBilinear:
		if cell, ok := cellFromNeighbors(values, s.NeighborLon, s.NeighborLat); ok {
			if v, err := BilinearInterpolate(cell, s.Lon, s.Lat); err == nil {
				return v, nil
			}
		}
	}
	samples := make([]Sample, len(values))
	for i, v := range values {
		samples[i] = Sample{Value: v, Distance: s.Horizontal[i]}
	}
	return IDW(samples, ip.Epsilon)
}

// VerticalPass weights per-level values by their height difference from alt.
func (ip Interpolator) VerticalPass(values, levelAlts []float64, alt float64) (float64, error) {
	samples := make([]Sample, len(values))
	for i, v := range values {
		samples[i] = Sample{Value: v, Distance: math.Abs(levelAlts[i] - alt)}
	}
	return IDW(samples, ip.Epsilon)
}

// TemporalPass weights per-time values by their distance in hours.
func (ip Interpolator) TemporalPass(values, hours []float64) (float64, error) {
	samples := make([]Sample, len(values))
	for i, v := range values {
		samples[i] = Sample{Value: v, Distance: math.Abs(hours[i])}
	}
	return IDW(samples, ip.Epsilon)
}

// Combined3DPass weights every level/neighbor sample by
// sqrt((d_km*1000)^2 + dz^2), using each neighbor's own column heights.
func (ip Interpolator) Combined3DPass(levels [][]float64, s *Stencil) (float64, error) {
	samples := make([]Sample, 0, len(levels)*len(s.Horizontal))
	for l, row := range levels {
		for h, v := range row {
			dxy := s.Horizontal[h] * 1000
			dz := s.LevelAlts[l][h] - s.Alt
			samples = append(samples, Sample{Value: v, Distance: math.Hypot(dxy, dz)})
		}
	}
	return IDW(samples, ip.Epsilon)
}
