package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"go.ngs.io/pointcast/internal/adapter/grid"
	"go.ngs.io/pointcast/internal/adapter/store"
	"go.ngs.io/pointcast/internal/adapter/store/hhl"
	"go.ngs.io/pointcast/internal/domain"
)

// LevelSource supplies the horizontal neighbors of a point and the half-level
// height column under a neighbor.
type LevelSource interface {
	Neighbors(ctx context.Context, rc *RequestContext, n int) ([]domain.GridNeighbor, error)
	Column(ctx context.Context, rc *RequestContext, index int) (domain.LevelColumn, error)
}

// hhlFetchWorkers bounds concurrent half-level downloads.
const hhlFetchWorkers = 4

// HHLProvider builds half-level stacks from the time-invariant HHL files of
// each model and serves neighbor searches and columns from them.
type HHLProvider struct {
	cache   Locator
	fetcher Fetcher
	reader  grid.FieldReader
	logger  *zap.Logger

	mu     sync.RWMutex
	stacks map[string]*hhl.Stack
	group  singleflight.Group
}

// NewHHLProvider creates a provider. Stacks are built on first use unless
// restored from a snapshot with Restore.
func NewHHLProvider(cache Locator, fetcher Fetcher, reader grid.FieldReader, logger *zap.Logger) *HHLProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HHLProvider{
		cache:   cache,
		fetcher: fetcher,
		reader:  reader,
		logger:  logger,
		stacks:  map[string]*hhl.Stack{},
	}
}

// Restore installs the stacks of a snapshot.
func (p *HHLProvider) Restore(snap *hhl.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, s := range snap.Stacks {
		p.stacks[name] = s
	}
}

// Snapshot returns the stacks built so far.
func (p *HHLProvider) Snapshot() *hhl.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := &hhl.Snapshot{Stacks: make(map[string]*hhl.Stack, len(p.stacks))}
	for name, s := range p.stacks {
		snap.Stacks[name] = s
	}
	return snap
}

// Neighbors implements LevelSource.
func (p *HHLProvider) Neighbors(ctx context.Context, rc *RequestContext, n int) ([]domain.GridNeighbor, error) {
	s, err := p.Stack(ctx, rc.Family, rc.Now)
	if err != nil {
		return nil, err
	}
	return grid.Nearest(s.Grid(), rc.Point.Lat, rc.Point.Lon, n)
}

// Column implements LevelSource.
func (p *HHLProvider) Column(ctx context.Context, rc *RequestContext, index int) (domain.LevelColumn, error) {
	s, err := p.Stack(ctx, rc.Family, rc.Now)
	if err != nil {
		return nil, err
	}
	return s.Column(index)
}

// Stack returns the stack of family, building it from the HHL files of the
// older-generation cycle at now if needed.
func (p *HHLProvider) Stack(ctx context.Context, family domain.ModelFamily, now time.Time) (*hhl.Stack, error) {
	p.mu.RLock()
	s, ok := p.stacks[family.Name]
	p.mu.RUnlock()
	if ok {
		return s, nil
	}

	// The build outlives the caller that started it.
	ch := p.group.DoChan(family.Name, func() (any, error) {
		p.mu.RLock()
		s, ok := p.stacks[family.Name]
		p.mu.RUnlock()
		if ok {
			return s, nil
		}
		s, err := p.build(context.WithoutCancel(ctx), family, now)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.stacks[family.Name] = s
		p.mu.Unlock()
		return s, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for %s half levels: %w", domain.ErrLevelResolution, family.Name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*hhl.Stack), nil
	}
}

func (p *HHLProvider) build(ctx context.Context, family domain.ModelFamily, now time.Time) (*hhl.Stack, error) {
	run, err := domain.CycleResolver{}.Resolve(family, now, nil, true)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HHL cycle: %w", err)
	}
	n := family.HalfLevels()
	start := time.Now()
	p.logger.Info("building half-level stack", zap.String("model", family.Name), zap.String("cycle", run.Date()+run.Hour()), zap.Int("levels", n))

	paths := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hhlFetchWorkers)
	for i := 1; i <= n; i++ {
		g.Go(func() error {
			id := run.HHLFile(i)
			path, err := p.cache.Lookup(id)
			if errors.Is(err, store.ErrNotCached) {
				path, err = p.fetcher.Fetch(gctx, id)
			}
			if err != nil {
				return fmt.Errorf("%w: half level %d: %w", domain.ErrLevelResolution, i, err)
			}
			paths[i-1] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var stack *hhl.Stack
	for i, path := range paths {
		field, err := p.reader.Field(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read half level %d: %w", domain.ErrLevelResolution, i+1, err)
		}
		if stack == nil {
			stack = hhl.NewStack(family.Name, run.Date()+run.Hour(), field)
		}
		if err := stack.Append(field); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrLevelResolution, err)
		}
	}

	p.logger.Info("half-level stack ready", zap.String("model", family.Name), zap.Duration("took", time.Since(start)))
	return stack, nil
}
