package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/pointcast/internal/domain"
)

type scriptedEstimator struct {
	fail    map[int]error
	running atomic.Int32
	peak    atomic.Int32
}

func (s *scriptedEstimator) Estimate(_ context.Context, index int, p domain.QueryPoint, vars []string) (domain.ResultRow, error) {
	n := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	// Later points finish first.
	time.Sleep(time.Duration(10-index%10) * time.Millisecond)

	if err := s.fail[index]; err != nil {
		return domain.ResultRow{}, err
	}
	return domain.ResultRow{Point: p, Level: index, Variables: vars, Values: []float64{float64(index)}}, nil
}

func points(n int) []domain.QueryPoint {
	out := make([]domain.QueryPoint, n)
	for i := range out {
		out[i] = domain.QueryPoint{Lat: 48, Lon: 11, Alt: float64(100 * i)}
	}
	return out
}

func TestBatchRunner_OrderAndFailures(t *testing.T) {
	est := &scriptedEstimator{fail: map[int]error{
		2: &domain.PointError{Index: 2, Err: fmt.Errorf("t: %w", domain.ErrFetchExhausted)},
		5: fmt.Errorf("lead 30h: %w", domain.ErrOutOfForecastWindow),
	}}
	r := NewBatchRunner(est, 3, nil)

	res, err := r.Run(context.Background(), points(8), []string{"t"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.RunID)

	require.Len(t, res.Rows, 6)
	var levels, indices []int
	for _, row := range res.Rows {
		levels = append(levels, row.Level)
		indices = append(indices, row.Index)
	}
	assert.Equal(t, []int{0, 1, 3, 4, 6, 7}, levels)
	assert.Equal(t, []int{0, 1, 3, 4, 6, 7}, indices)

	require.Len(t, res.Failures, 2)
	assert.Equal(t, 2, res.Failures[0].Index)
	assert.Equal(t, "FetchExhausted", res.Failures[0].Kind())
	assert.Equal(t, 5, res.Failures[1].Index)
	assert.Equal(t, "OutOfForecastWindow", res.Failures[1].Kind())
	assert.Equal(t, 500.0, res.Failures[1].Point.Alt)

	assert.LessOrEqual(t, est.peak.Load(), int32(3))
}

func TestBatchRunner_SingleWorker(t *testing.T) {
	est := &scriptedEstimator{}
	res, err := NewBatchRunner(est, 0, nil).Run(context.Background(), points(4), nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4)
	assert.Equal(t, int32(1), est.peak.Load())
	assert.Equal(t, domain.DefaultVariables, res.Variables)
}

func TestBatchRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBatchRunner(&scriptedEstimator{}, 2, nil).Run(ctx, points(4), []string{"t"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResultAggregator(t *testing.T) {
	a := NewResultAggregator([]string{"t", "p"})
	a.Add(3, domain.ResultRow{Level: 3})
	a.Fail(&domain.PointError{Index: 1, Err: domain.ErrLevelResolution})
	a.Add(0, domain.ResultRow{Level: 0})
	a.Fail(&domain.PointError{Index: 2, Err: domain.ErrLevelResolution})

	rows := a.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Level)
	assert.Equal(t, 3, rows[1].Level)
	assert.Equal(t, 3, rows[1].Index)
	assert.Equal(t, 1, a.Failures()[0].Index)
	assert.Equal(t, map[string]int{"LevelResolutionFailure": 2}, a.FailuresByKind())
	assert.Equal(t, []string{"t", "p"}, a.Variables())
}
