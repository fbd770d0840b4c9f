package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/domain"
)

// Full levels 1..5 sit at 900, 700, 500, 300 and 100 m.
var testColumn = domain.LevelColumn{1000, 800, 600, 400, 200, 0}

func newTestEstimator(fs *fileSystem, cfg EstimatorConfig, geoid Geoid) *Estimator {
	cascade := NewCascade(fs, fs, domain.CycleResolver{}, nil)
	e := NewEstimator(fixedLevels{column: testColumn}, cascade, fs, geoid, cfg, nil)
	e.now = func() time.Time { return cascadeNow }
	return e
}

func TestEstimator_VerticalBracket(t *testing.T) {
	fs := newFileSystem()
	fs.value = func(id domain.FileIdentity, _ int) float64 { return 10 * float64(id.Level) }
	e := newTestEstimator(fs, EstimatorConfig{Neighbors: 4, Vertical: true}, nil)

	row, err := e.Estimate(context.Background(), 4, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520}, []string{"t"})
	require.NoError(t, err)

	// Level 3 (500 m, value 30) and level 2 (700 m, value 20) at 20 m and 180 m.
	assert.Equal(t, 4, row.Index)
	assert.Equal(t, 3, row.Level)
	assert.Equal(t, "icon-d2", row.Model)
	assert.InDelta(t, 29.0, row.Values[0], 1e-9)
	assert.Equal(t, cascadeNow, row.Time)
}

func TestEstimator_NearestLevelOnly(t *testing.T) {
	fs := newFileSystem()
	fs.value = func(id domain.FileIdentity, _ int) float64 { return 10 * float64(id.Level) }
	e := newTestEstimator(fs, EstimatorConfig{Neighbors: 4}, nil)

	row, err := e.Estimate(context.Background(), 0, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520}, []string{"t"})
	require.NoError(t, err)
	assert.InDelta(t, 30.0, row.Values[0], 1e-9)
	for _, id := range fs.reads {
		assert.Equal(t, 3, id.Level)
	}
}

func TestEstimator_HorizontalIDW(t *testing.T) {
	fs := newFileSystem()
	// Neighbors at 1, 2, 3, 4 km.
	fs.value = func(_ domain.FileIdentity, index int) float64 { return float64(index) }
	e := newTestEstimator(fs, EstimatorConfig{Neighbors: 2}, nil)

	row, err := e.Estimate(context.Background(), 0, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520}, []string{"t"})
	require.NoError(t, err)
	// (0/1 + 1/2) / (1/1 + 1/2)
	assert.InDelta(t, 1.0/3.0, row.Values[0], 1e-12)
}

func TestEstimator_TemporalBracket(t *testing.T) {
	fs := newFileSystem()
	fs.value = func(id domain.FileIdentity, _ int) float64 { return float64(id.Offset) }
	e := newTestEstimator(fs, EstimatorConfig{Neighbors: 4, Temporal: true}, nil)
	target := cascadeNow.Add(15 * time.Minute)

	row, err := e.Estimate(context.Background(), 0, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520, Time: &target}, []string{"t"})
	require.NoError(t, err)
	// Nothing is cached, so both hours come from the fetched 09 UTC run:
	// offsets 5 (0.25 h away) and 6 (0.75 h away).
	assert.InDelta(t, 5.25, row.Values[0], 1e-9)
	assert.Equal(t, target, row.Time)
}

func TestEstimator_TemporalOnTheHour(t *testing.T) {
	fs := newFileSystem()
	fs.value = func(id domain.FileIdentity, _ int) float64 { return float64(id.Offset) }
	e := newTestEstimator(fs, EstimatorConfig{Neighbors: 4, Temporal: true}, nil)
	target := cascadeNow.Add(time.Hour)

	row, err := e.Estimate(context.Background(), 0, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520, Time: &target}, []string{"t"})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, row.Values[0], 1e-9)
	for _, id := range fs.reads {
		assert.Equal(t, 6, id.Offset)
	}
}

func TestEstimator_OlderFlagSticks(t *testing.T) {
	fs := newFileSystem()
	current, older := runs(t)
	// Level 3 exists only in the older run, level 2 in both.
	fs.put(older.File(3, "t"), current.File(2, "t"), older.File(2, "t"))
	fs.remote = func(domain.FileIdentity) bool { return false }
	e := newTestEstimator(fs, EstimatorConfig{Neighbors: 4, Vertical: true}, nil)

	_, err := e.Estimate(context.Background(), 0, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520}, []string{"t"})
	require.NoError(t, err)
	require.NotEmpty(t, fs.reads)
	for _, id := range fs.reads {
		assert.Equal(t, "09", id.Hour, id.String())
	}
}

func TestEstimator_VariablesInRequestOrder(t *testing.T) {
	fs := newFileSystem()
	fs.value = func(id domain.FileIdentity, _ int) float64 {
		return map[string]float64{"t": 280, "p": 95000, "qv": 0.004}[id.Variable]
	}
	e := newTestEstimator(fs, EstimatorConfig{Neighbors: 4}, nil)

	row, err := e.Estimate(context.Background(), 0, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520}, []string{"QV", "t", "p", "t"})
	require.NoError(t, err)
	assert.Equal(t, []string{"qv", "t", "p"}, row.Variables)
	assert.InDeltaSlice(t, []float64{0.004, 280, 95000}, row.Values, 1e-6)
}

func TestEstimator_ContinentalDomain(t *testing.T) {
	fs := newFileSystem()
	e := newTestEstimator(fs, EstimatorConfig{Neighbors: 4}, nil)

	row, err := e.Estimate(context.Background(), 0, domain.QueryPoint{Lat: 40, Lon: 11, Alt: 520}, []string{"t"})
	require.NoError(t, err)
	assert.Equal(t, "icon-eu", row.Model)
	for _, id := range fs.fetches {
		assert.Equal(t, "icon-eu", id.Family.Name)
	}
}

func TestEstimator_Ellipsoid(t *testing.T) {
	fs := newFileSystem()
	fs.value = func(id domain.FileIdentity, _ int) float64 { return 10 * float64(id.Level) }
	p := domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 567.5, AltitudeRef: domain.AltitudeEllipsoid}

	_, err := newTestEstimator(fs, EstimatorConfig{Neighbors: 4}, nil).Estimate(context.Background(), 0, p, []string{"t"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidPoint))

	row, err := newTestEstimator(fs, EstimatorConfig{Neighbors: 4, Vertical: true}, fixedGeoid(47.5)).Estimate(context.Background(), 0, p, []string{"t"})
	require.NoError(t, err)
	assert.InDelta(t, 29.0, row.Values[0], 1e-9)
}

func TestEstimator_FailuresArePointErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(fs *fileSystem) (*Estimator, domain.QueryPoint)
		kind  string
	}{
		{
			name: "fetch exhausted",
			setup: func(fs *fileSystem) (*Estimator, domain.QueryPoint) {
				fs.remote = func(domain.FileIdentity) bool { return false }
				return newTestEstimator(fs, EstimatorConfig{Neighbors: 4}, nil), domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520}
			},
			kind: "FetchExhausted",
		},
		{
			name: "out of window",
			setup: func(fs *fileSystem) (*Estimator, domain.QueryPoint) {
				target := cascadeNow.Add(48 * time.Hour)
				return newTestEstimator(fs, EstimatorConfig{Neighbors: 4}, nil), domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520, Time: &target}
			},
			kind: "OutOfForecastWindow",
		},
		{
			name: "degenerate column",
			setup: func(fs *fileSystem) (*Estimator, domain.QueryPoint) {
				cascade := NewCascade(fs, fs, domain.CycleResolver{}, nil)
				e := NewEstimator(fixedLevels{column: domain.LevelColumn{100}}, cascade, fs, nil, EstimatorConfig{Neighbors: 4}, nil)
				return e, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520}
			},
			kind: "LevelResolutionFailure",
		},
		{
			name: "invalid latitude",
			setup: func(fs *fileSystem) (*Estimator, domain.QueryPoint) {
				return newTestEstimator(fs, EstimatorConfig{Neighbors: 4}, nil), domain.QueryPoint{Lat: 91, Lon: 11, Alt: 520}
			},
			kind: "InvalidPoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, p := tt.setup(newFileSystem())
			_, err := e.Estimate(context.Background(), 7, p, nil)
			require.Error(t, err)
			var pe *domain.PointError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, 7, pe.Index)
			assert.Equal(t, tt.kind, pe.Kind())
		})
	}
}

func TestEstimator_NaNAltitudeIsInvalid(t *testing.T) {
	fs := newFileSystem()
	_, err := newTestEstimator(fs, EstimatorConfig{Neighbors: 4, Vertical: true}, nil).
		Estimate(context.Background(), 0, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: math.NaN()}, []string{"t"})
	require.Error(t, err)
	assert.Equal(t, "InvalidPoint", domain.ErrorKind(err))
	assert.Empty(t, fs.fetches)
}

func TestEstimator_CombinedStrategy(t *testing.T) {
	fs := newFileSystem()
	fs.value = func(id domain.FileIdentity, _ int) float64 { return 10 * float64(id.Level) }
	cfg := EstimatorConfig{
		Neighbors:    4,
		Vertical:     true,
		Interpolator: interp.Interpolator{Strategy: interp.StrategyCombined},
	}

	row, err := newTestEstimator(fs, cfg, nil).Estimate(context.Background(), 0, domain.QueryPoint{Lat: 48.01, Lon: 11.01, Alt: 520}, []string{"t"})
	require.NoError(t, err)
	// Horizontal distances of 1-4 km dominate the 20 m and 180 m height
	// differences, so the two levels get nearly equal weight.
	assert.Greater(t, row.Values[0], 24.0)
	assert.Less(t, row.Values[0], 26.0)
}
