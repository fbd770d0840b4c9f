package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go.ngs.io/pointcast/internal/domain"
)

// PointEstimator estimates a single point.
type PointEstimator interface {
	Estimate(ctx context.Context, index int, p domain.QueryPoint, vars []string) (domain.ResultRow, error)
}

// BatchResult is the outcome of a batch run.
type BatchResult struct {
	RunID     uuid.UUID
	Variables []string
	Rows      []domain.ResultRow
	Failures  []*domain.PointError
	Started   time.Time
	Finished  time.Time
}

// BatchRunner estimates a list of points with a bounded number of workers.
// A failing point is recorded and the batch continues.
type BatchRunner struct {
	estimator PointEstimator
	workers   int
	logger    *zap.Logger
}

// NewBatchRunner creates a runner. workers below 1 means one.
func NewBatchRunner(estimator PointEstimator, workers int, logger *zap.Logger) *BatchRunner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{estimator: estimator, workers: workers, logger: logger}
}

// Run estimates every point. It only returns an error when ctx is cancelled;
// per-point failures are reported in the result.
func (b *BatchRunner) Run(ctx context.Context, points []domain.QueryPoint, vars []string) (*BatchResult, error) {
	vars = domain.NormalizeVariables(vars)
	res := &BatchResult{RunID: uuid.New(), Variables: vars, Started: time.Now().UTC()}
	logger := b.logger.With(zap.String("run_id", res.RunID.String()))
	logger.Info("batch started", zap.Int("points", len(points)), zap.Strings("variables", vars), zap.Int("workers", b.workers))

	agg := NewResultAggregator(vars)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, p := range points {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row, err := b.estimator.Estimate(gctx, i, p, vars)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var pe *domain.PointError
				if !errors.As(err, &pe) {
					pe = &domain.PointError{Index: i, Point: p, Err: err}
				}
				agg.Fail(pe)
				logger.Warn("point failed", zap.Int("point", i), zap.String("kind", pe.Kind()), zap.Error(pe.Err))
				return nil
			}
			agg.Add(i, row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Rows = agg.Rows()
	res.Failures = agg.Failures()
	res.Finished = time.Now().UTC()
	logger.Info("batch finished",
		zap.Int("rows", len(res.Rows)),
		zap.Int("failed", len(res.Failures)),
		zap.Any("failures_by_kind", agg.FailuresByKind()),
		zap.Duration("took", res.Finished.Sub(res.Started)),
	)
	return res, nil
}
