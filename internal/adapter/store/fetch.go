package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go.ngs.io/pointcast/internal/domain"
)

// Fetcher downloads files from its sources into a cache. Concurrent fetches
// of the same file share one download.
type Fetcher struct {
	cache   Cache
	sources []Source
	timeout time.Duration
	logger  *zap.Logger
	group   singleflight.Group
}

// NewFetcher creates a fetcher trying sources in order. timeout bounds each
// source attempt; zero means no limit beyond the caller's context.
func NewFetcher(cache Cache, timeout time.Duration, logger *zap.Logger, sources ...Source) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cache:   cache,
		sources: sources,
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch makes id available locally and returns its path. Every failure,
// including a timeout, wraps domain.ErrFetchExhausted. The download is shared
// by concurrent callers and outlives a caller that gives up; only the
// per-source timeout bounds it.
func (f *Fetcher) Fetch(ctx context.Context, id domain.FileIdentity) (string, error) {
	ch := f.group.DoChan(id.String(), func() (any, error) {
		return f.fetch(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: %w", domain.ErrFetchExhausted, id, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			f.logger.Debug("shared fetch", zap.Stringer("file", id))
		}
		return res.Val.(string), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, id domain.FileIdentity) (string, error) {
	// Another caller may have completed the download already.
	if p, err := f.cache.Lookup(id); err == nil {
		return p, nil
	}
	if len(f.sources) == 0 {
		return "", fmt.Errorf("%w: %s: no remote sources configured", domain.ErrFetchExhausted, id)
	}

	var errs []error
	for _, src := range f.sources {
		start := time.Now()
		p, err := f.fetchFrom(ctx, src, id)
		if err == nil {
			f.logger.Info("fetched file",
				zap.String("source", src.Name()),
				zap.Stringer("file", id),
				zap.Duration("elapsed", time.Since(start)))
			return p, nil
		}
		f.logger.Warn("fetch attempt failed",
			zap.String("source", src.Name()),
			zap.Stringer("file", id),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}
	return "", fmt.Errorf("%w: %s: %w", domain.ErrFetchExhausted, id, errors.Join(errs...))
}

func (f *Fetcher) fetchFrom(ctx context.Context, src Source, id domain.FileIdentity) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	rc, err := src.Open(ctx, id)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return f.cache.Put(id, rc)
}
