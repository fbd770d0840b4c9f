package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.ngs.io/pointcast/internal/adapter/grid"
	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/adapter/store"
	"go.ngs.io/pointcast/internal/domain"
)

// fileSystem is an in-memory cache, fetcher and grid reader. Paths are the
// identity strings of the files they hold.
type fileSystem struct {
	mu       sync.Mutex
	cached   map[domain.FileIdentity]bool
	remote   func(id domain.FileIdentity) bool
	value    func(id domain.FileIdentity, index int) float64
	byPath   map[string]domain.FileIdentity
	lookups  []domain.FileIdentity
	fetches  []domain.FileIdentity
	reads    []domain.FileIdentity
	fetchErr  error
	lookupErr error

	// fetchGate, when set, holds every fetch until it is closed.
	fetchGate chan struct{}
}

func newFileSystem() *fileSystem {
	return &fileSystem{
		cached: map[domain.FileIdentity]bool{},
		remote: func(domain.FileIdentity) bool { return true },
		value:  func(domain.FileIdentity, int) float64 { return 0 },
		byPath: map[string]domain.FileIdentity{},
	}
}

func (f *fileSystem) put(ids ...domain.FileIdentity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.cached[id] = true
		f.byPath[id.String()] = id
	}
}

func (f *fileSystem) Lookup(id domain.FileIdentity) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id)
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	if !f.cached[id] {
		return "", fmt.Errorf("%s: %w", id, store.ErrNotCached)
	}
	return id.String(), nil
}

func (f *fileSystem) Fetch(ctx context.Context, id domain.FileIdentity) (string, error) {
	if f.fetchGate != nil {
		select {
		case <-f.fetchGate:
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %w", domain.ErrFetchExhausted, id, ctx.Err())
		}
	}
	f.mu.Lock()
	f.fetches = append(f.fetches, id)
	ok := f.fetchErr == nil && f.remote(id)
	f.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s: remote unavailable", domain.ErrFetchExhausted, id)
	}
	f.put(id)
	return id.String(), nil
}

func (f *fileSystem) Value(_ context.Context, path string, index int) (float64, error) {
	f.mu.Lock()
	id, ok := f.byPath[path]
	if ok {
		f.reads = append(f.reads, id)
	}
	f.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("no such file %s", path)
	}
	return f.value(id, index), nil
}

func (f *fileSystem) Nearest(_ context.Context, path string, lat, lon float64, n int) ([]domain.GridNeighbor, error) {
	g, err := f.Field(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return grid.Nearest(g, lat, lon, n)
}

// Field returns a 2x2 grid whose values come from the value function.
func (f *fileSystem) Field(_ context.Context, path string) (*interp.Grid2D, error) {
	f.mu.Lock()
	id, ok := f.byPath[path]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such file %s", path)
	}
	return &interp.Grid2D{
		X: []float64{11.0, 11.02},
		Y: []float64{48.0, 48.02},
		Values: [][]float64{
			{f.value(id, 0), f.value(id, 1)},
			{f.value(id, 2), f.value(id, 3)},
		},
	}, nil
}

func (f *fileSystem) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

// fixedLevels serves four neighbors with identical columns.
type fixedLevels struct {
	column domain.LevelColumn
	err    error
}

func (l fixedLevels) Neighbors(_ context.Context, _ *RequestContext, n int) ([]domain.GridNeighbor, error) {
	if l.err != nil {
		return nil, l.err
	}
	all := []domain.GridNeighbor{
		{Index: 0, Distance: 1, Lat: 48.0, Lon: 11.0},
		{Index: 1, Distance: 2, Lat: 48.0, Lon: 11.02},
		{Index: 2, Distance: 3, Lat: 48.02, Lon: 11.0},
		{Index: 3, Distance: 4, Lat: 48.02, Lon: 11.02},
	}
	return all[:min(n, len(all))], nil
}

func (l fixedLevels) Column(_ context.Context, _ *RequestContext, _ int) (domain.LevelColumn, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.column, nil
}

type fixedGeoid float64

func (g fixedGeoid) Orthometric(_, _, h float64) (float64, error) {
	return h - float64(g), nil
}
