package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/domain"
)

// ValueReader reads one field value at a flat grid index.
type ValueReader interface {
	Value(ctx context.Context, path string, index int) (float64, error)
}

// Geoid converts ellipsoidal heights to heights above mean sea level.
type Geoid interface {
	Orthometric(lat, lon, h float64) (float64, error)
}

// EstimatorConfig selects which axes are interpolated and how.
type EstimatorConfig struct {
	Neighbors    int  // Horizontal neighbors per level.
	Vertical     bool // Interpolate between the bracketing levels.
	Temporal     bool // Interpolate between the bracketing whole hours.
	Interpolator interp.Interpolator
}

// Estimator produces one result row per query point.
type Estimator struct {
	regions *domain.RegionSelector
	levels  LevelSource
	cascade *Cascade
	reader  ValueReader
	geoid   Geoid
	cfg     EstimatorConfig
	logger  *zap.Logger

	now func() time.Time
}

// NewEstimator creates an estimator. geoid may be nil, in which case points
// with ellipsoidal altitudes are rejected.
func NewEstimator(levels LevelSource, cascade *Cascade, reader ValueReader, geoid Geoid, cfg EstimatorConfig, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Neighbors < 1 {
		cfg.Neighbors = 4
	}
	if cfg.Interpolator.Epsilon <= 0 {
		cfg.Interpolator.Epsilon = interp.DefaultEpsilon
	}
	return &Estimator{
		regions: domain.NewRegionSelector(),
		levels:  levels,
		cascade: cascade,
		reader:  reader,
		geoid:   geoid,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// timeSample is one forecast time contributing to an estimate.
type timeSample struct {
	at    *time.Time // Nil means the cycle resolver's "now".
	hours float64    // Distance from the target in hours.
}

// Estimate computes every variable of vars at point p. Any failure aborts the
// point and is returned as a *domain.PointError.
func (e *Estimator) Estimate(ctx context.Context, index int, p domain.QueryPoint, vars []string) (domain.ResultRow, error) {
	row, err := e.estimate(ctx, index, p, domain.NormalizeVariables(vars))
	if err != nil {
		return domain.ResultRow{}, &domain.PointError{Index: index, Point: p, Err: err}
	}
	return row, nil
}

func (e *Estimator) estimate(ctx context.Context, index int, p domain.QueryPoint, vars []string) (domain.ResultRow, error) {
	if err := p.Validate(); err != nil {
		return domain.ResultRow{}, err
	}
	alt, err := e.altitude(p)
	if err != nil {
		return domain.ResultRow{}, err
	}

	d := e.regions.Select(p.Lat, p.Lon)
	family, err := domain.FamilyFor(d)
	if err != nil {
		return domain.ResultRow{}, err
	}
	rc := NewRequestContext(index, p, d, family, e.now(), e.logger)

	nbrs, err := e.levels.Neighbors(ctx, rc, e.cfg.Neighbors)
	if err != nil {
		return domain.ResultRow{}, fmt.Errorf("failed to find neighbors: %w", err)
	}

	pair, levels, levelAlts, err := e.resolveLevels(ctx, rc, nbrs, alt)
	if err != nil {
		return domain.ResultRow{}, err
	}
	rc.Logger.Debug("level resolved", zap.Int("nearest", pair.Nearest), zap.Int("neighbor", pair.Neighbor))

	times := e.timeSamples(p.Time, rc.Now)
	stencil := interp.Stencil{
		Horizontal:  make([]float64, len(nbrs)),
		NeighborLat: make([]float64, len(nbrs)),
		NeighborLon: make([]float64, len(nbrs)),
		LevelAlts:   levelAlts,
		Temporal:    make([]float64, len(times)),
		Lat:         p.Lat,
		Lon:         domain.NormalizeLon180(p.Lon),
		Alt:         alt,
	}
	for i, n := range nbrs {
		stencil.Horizontal[i] = n.Distance
		stencil.NeighborLat[i] = n.Lat
		stencil.NeighborLon[i] = domain.NormalizeLon180(n.Lon)
	}
	for i, ts := range times {
		stencil.Temporal[i] = ts.hours
	}

	row := domain.ResultRow{
		Index:     index,
		Point:     p,
		Level:     pair.Nearest,
		Model:     family.Name,
		Variables: vars,
		Values:    make([]float64, len(vars)),
	}
	for vi, variable := range vars {
		values, valid, err := e.gather(ctx, rc, variable, times, levels, nbrs)
		if err != nil {
			return domain.ResultRow{}, fmt.Errorf("variable %s: %w", variable, err)
		}
		stencil.Values = values
		v, err := e.cfg.Interpolator.Estimate(stencil)
		if err != nil {
			return domain.ResultRow{}, fmt.Errorf("variable %s: %w", variable, err)
		}
		row.Values[vi] = v
		if row.Time.IsZero() {
			row.Time = valid
		}
	}
	switch {
	case p.Time != nil:
		row.Time = p.Time.UTC()
	case e.cfg.Temporal:
		row.Time = rc.Now
	}

	rc.Logger.Debug("point estimated", zap.Bool("older", rc.Older), zap.Int("level", row.Level))
	return row, nil
}

func (e *Estimator) altitude(p domain.QueryPoint) (float64, error) {
	if p.AltitudeRef != domain.AltitudeEllipsoid {
		return p.Alt, nil
	}
	if e.geoid == nil {
		return 0, fmt.Errorf("%w: ellipsoidal altitude requires a geoid grid", domain.ErrInvalidPoint)
	}
	h, err := e.geoid.Orthometric(p.Lat, p.Lon, p.Alt)
	if err != nil {
		return 0, fmt.Errorf("failed to convert ellipsoidal altitude: %w", err)
	}
	return h, nil
}

// resolveLevels picks the levels to sample and the full-level heights of
// each under every neighbor.
func (e *Estimator) resolveLevels(ctx context.Context, rc *RequestContext, nbrs []domain.GridNeighbor, alt float64) (domain.LevelPair, []int, [][]float64, error) {
	columns := make([]domain.FullLevelColumn, len(nbrs))
	for i, n := range nbrs {
		col, err := e.levels.Column(ctx, rc, n.Index)
		if err != nil {
			return domain.LevelPair{}, nil, nil, err
		}
		columns[i] = col.FullLevels()
	}

	pair, err := domain.ResolveLevel(columns[0], alt)
	if err != nil {
		return domain.LevelPair{}, nil, nil, err
	}
	levels := []int{pair.Nearest}
	if e.cfg.Vertical {
		levels = append(levels, pair.Neighbor)
	}

	alts := make([][]float64, len(levels))
	for l, level := range levels {
		alts[l] = make([]float64, len(nbrs))
		for i, col := range columns {
			if level > len(col) {
				return domain.LevelPair{}, nil, nil, fmt.Errorf("%w: neighbor %d has %d levels, need %d",
					domain.ErrLevelResolution, nbrs[i].Index, len(col), level)
			}
			alts[l][i] = col.Altitude(level)
		}
	}
	return pair, levels, alts, nil
}

// timeSamples returns the forecast times to sample. With temporal
// interpolation the whole hours on either side of the target are used; a
// target on the hour needs only one.
func (e *Estimator) timeSamples(target *time.Time, now time.Time) []timeSample {
	if !e.cfg.Temporal {
		return []timeSample{{at: target}}
	}
	t := now
	if target != nil {
		t = target.UTC()
	}
	floor := t.Truncate(time.Hour)
	frac := t.Sub(floor).Hours()
	if frac == 0 {
		return []timeSample{{at: &floor, hours: 0}}
	}
	ceil := floor.Add(time.Hour)
	return []timeSample{
		{at: &floor, hours: frac},
		{at: &ceil, hours: 1 - frac},
	}
}

// gather reads every sample of one variable, indexed [time][level][neighbor].
// It also returns the valid time of the first file read.
func (e *Estimator) gather(ctx context.Context, rc *RequestContext, variable string, times []timeSample, levels []int, nbrs []domain.GridNeighbor) ([][][]float64, time.Time, error) {
	var valid time.Time
	values := make([][][]float64, len(times))
	for t, ts := range times {
		values[t] = make([][]float64, len(levels))
		for l, level := range levels {
			h, err := e.cascade.Resolve(ctx, rc, FileRequest{Level: level, Variable: variable, Time: ts.at})
			if err != nil {
				return nil, valid, err
			}
			if valid.IsZero() {
				valid = h.Run.ValidTime()
			}
			row := make([]float64, len(nbrs))
			for i, n := range nbrs {
				v, err := e.reader.Value(ctx, h.Path, n.Index)
				if err != nil {
					return nil, valid, fmt.Errorf("failed to read %s: %w", h.Run.File(level, variable), err)
				}
				row[i] = v
			}
			values[t][l] = row
		}
	}
	return values, valid, nil
}
