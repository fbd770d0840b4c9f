// Package app assembles the engine from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"go.ngs.io/pointcast/internal/adapter/geoid"
	"go.ngs.io/pointcast/internal/adapter/grid"
	"go.ngs.io/pointcast/internal/adapter/store"
	"go.ngs.io/pointcast/internal/adapter/store/cache"
	"go.ngs.io/pointcast/internal/adapter/store/hhl"
	"go.ngs.io/pointcast/internal/adapter/store/remote"
	"go.ngs.io/pointcast/internal/config"
	"go.ngs.io/pointcast/internal/usecase"
)

// Decoded fields kept in memory and for how long.
const (
	fieldCacheSize = 256
	fieldCacheTTL  = 30 * time.Minute
)

// Engine holds the wired components.
type Engine struct {
	Config    *config.Config
	Cache     *cache.Store
	Fetcher   *store.Fetcher
	HHL       *usecase.HHLProvider
	Estimator *usecase.Estimator
	Batch     *usecase.BatchRunner

	logger  *zap.Logger
	closers []func() error
}

// New builds the engine described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{Config: cfg, logger: logger}

	c, err := cache.New(cfg.Data.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	e.Cache = c

	var sources []store.Source
	if cfg.Remote.MirrorBucket != "" {
		gcs, err := remote.NewGCSSource(ctx, cfg.Remote.MirrorBucket, cfg.Remote.MirrorPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to open mirror bucket: %w", err)
		}
		e.closers = append(e.closers, gcs.Close)
		sources = append(sources, gcs)
	}
	sources = append(sources, remote.NewHTTPSource(cfg.Remote.BaseURL, cfg.Remote.Timeout))
	e.Fetcher = store.NewFetcher(c, cfg.Remote.Timeout, logger, sources...)

	reader := grid.NewConvertingReader(
		grid.NewNetCDFReader(fieldCacheSize, fieldCacheTTL),
		grid.Wgrib2{Binary: cfg.Data.Wgrib2, Logger: logger},
	)

	e.HHL = usecase.NewHHLProvider(c, e.Fetcher, reader, logger)
	if cfg.Data.HHLSnapshot != "" {
		snap, err := hhl.LoadSnapshotFile(cfg.Data.HHLSnapshot)
		switch {
		case err == nil:
			e.HHL.Restore(snap)
			logger.Info("restored half-level snapshot", zap.String("path", cfg.Data.HHLSnapshot), zap.Int("models", len(snap.Stacks)))
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no half-level snapshot yet", zap.String("path", cfg.Data.HHLSnapshot))
		default:
			return nil, fmt.Errorf("failed to load half-level snapshot: %w", err)
		}
	}

	var g usecase.Geoid
	if cfg.Data.GeoidPath != "" {
		g = geoid.NewStore(cfg.Data.GeoidPath)
	}

	cascade := usecase.NewCascade(c, e.Fetcher, cfg.CycleResolver(), logger)
	e.Estimator = usecase.NewEstimator(e.HHL, cascade, reader, g, usecase.EstimatorConfig{
		Neighbors:    cfg.Interpolation.Neighbors,
		Vertical:     cfg.Interpolation.Vertical,
		Temporal:     cfg.Interpolation.Temporal,
		Interpolator: cfg.Interpolator(),
	}, logger)
	e.Batch = usecase.NewBatchRunner(e.Estimator, cfg.Batch.Workers, logger)
	return e, nil
}

// SaveSnapshot writes the half-level stacks built so far, if a snapshot path
// is configured.
func (e *Engine) SaveSnapshot() error {
	if e.Config.Data.HHLSnapshot == "" {
		return nil
	}
	return e.HHL.Snapshot().SaveFile(e.Config.Data.HHLSnapshot)
}

// Cull removes stale model-level files from the cache.
func (e *Engine) Cull(now time.Time) {
	n, err := e.Cache.Cull(now, e.Config.Data.CullAge)
	if err != nil {
		e.logger.Warn("cache cull failed", zap.Error(err))
		return
	}
	e.logger.Info("cache culled", zap.Int("removed", n))
}

// Close releases remote clients.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
