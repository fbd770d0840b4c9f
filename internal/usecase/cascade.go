package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go.ngs.io/pointcast/internal/adapter/store"
	"go.ngs.io/pointcast/internal/domain"
)

// Outcome is the result of one cascade stage.
type Outcome int

const (
	// Found means the stage produced a readable local file.
	Found Outcome = iota
	// NeedsOlderGeneration means the current run is not cached locally or
	// does not cover the requested time.
	NeedsOlderGeneration
	// NeedsFetch means neither generation is cached locally.
	NeedsFetch
	// Exhausted means the request cannot be satisfied.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "Found"
	case NeedsOlderGeneration:
		return "NeedsOlderGeneration"
	case NeedsFetch:
		return "NeedsFetch"
	case Exhausted:
		return "Exhausted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Locator finds files in the local cache.
type Locator interface {
	Lookup(id domain.FileIdentity) (string, error)
}

// Fetcher downloads a file into the local cache and returns its path.
type Fetcher interface {
	Fetch(ctx context.Context, id domain.FileIdentity) (string, error)
}

// FileRequest names one (level, variable, time) triple. A nil Time means now.
type FileRequest struct {
	Level    int
	Variable string
	Time     *time.Time
}

// Handle is a readable local file together with the run it belongs to and
// the stage outcomes that led to it.
type Handle struct {
	Path   string
	Run    domain.ModelRun
	Stages []Outcome
}

// Cascade resolves file requests to local files: the current run from the
// cache, then the older run from the cache, then the older run from a remote
// source. The fetch stage is attempted once.
type Cascade struct {
	cache   Locator
	fetcher Fetcher
	cycles  domain.CycleResolver
	logger  *zap.Logger
}

// NewCascade creates a cascade.
func NewCascade(cache Locator, fetcher Fetcher, cycles domain.CycleResolver, logger *zap.Logger) *Cascade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cascade{cache: cache, fetcher: fetcher, cycles: cycles, logger: logger}
}

type stage func(ctx context.Context, rc *RequestContext, req FileRequest) (Outcome, string, domain.ModelRun, error)

// Resolve runs the cascade for req. On a fallback to the older generation it
// sets rc.Older so later requests of the same point stay on that run.
func (c *Cascade) Resolve(ctx context.Context, rc *RequestContext, req FileRequest) (Handle, error) {
	stages := []stage{c.tryCurrent, c.tryOlder, c.fetch}
	h := Handle{}
	for _, s := range stages {
		outcome, path, run, err := s(ctx, rc, req)
		h.Stages = append(h.Stages, outcome)
		switch outcome {
		case Found:
			h.Path, h.Run = path, run
			if run.Older {
				rc.Older = true
			}
			rc.Logger.Debug("file resolved",
				zap.String("file", run.File(req.Level, req.Variable).String()),
				zap.String("stage", stageName(len(h.Stages))),
			)
			return h, nil
		case Exhausted:
			rc.Logger.Debug("cascade exhausted",
				zap.Int("level", req.Level),
				zap.String("variable", req.Variable),
				zap.String("stage", stageName(len(h.Stages))),
				zap.String("kind", domain.ErrorKind(err)),
			)
			return h, err
		}
	}
	// The fetch stage always ends in Found or Exhausted.
	return h, fmt.Errorf("%w: cascade ended without a result", domain.ErrFetchExhausted)
}

func stageName(n int) string {
	switch n {
	case 1:
		return "current"
	case 2:
		return "older"
	default:
		return "fetch"
	}
}

func (c *Cascade) tryCurrent(_ context.Context, rc *RequestContext, req FileRequest) (Outcome, string, domain.ModelRun, error) {
	run, err := c.cycles.Resolve(rc.Family, rc.Now, req.Time, rc.Older)
	switch {
	case errors.Is(err, domain.ErrOutOfForecastWindow):
		// A target just before the latest cycle is still covered by the older one.
		return NeedsOlderGeneration, "", run, nil
	case err != nil:
		return Exhausted, "", run, err
	}
	return c.lookup(run, req, NeedsOlderGeneration)
}

func (c *Cascade) tryOlder(_ context.Context, rc *RequestContext, req FileRequest) (Outcome, string, domain.ModelRun, error) {
	run, err := c.cycles.Resolve(rc.Family, rc.Now, req.Time, true)
	if err != nil {
		return Exhausted, "", run, err
	}
	return c.lookup(run, req, NeedsFetch)
}

func (c *Cascade) fetch(ctx context.Context, rc *RequestContext, req FileRequest) (Outcome, string, domain.ModelRun, error) {
	run, err := c.cycles.Resolve(rc.Family, rc.Now, req.Time, true)
	if err != nil {
		return Exhausted, "", run, err
	}
	path, err := c.fetcher.Fetch(ctx, run.File(req.Level, req.Variable))
	if err != nil {
		if !errors.Is(err, domain.ErrFetchExhausted) {
			err = fmt.Errorf("%w: %w", domain.ErrFetchExhausted, err)
		}
		return Exhausted, "", run, err
	}
	return Found, path, run, nil
}

func (c *Cascade) lookup(run domain.ModelRun, req FileRequest, miss Outcome) (Outcome, string, domain.ModelRun, error) {
	path, err := c.cache.Lookup(run.File(req.Level, req.Variable))
	switch {
	case err == nil:
		return Found, path, run, nil
	case errors.Is(err, store.ErrNotCached):
		return miss, "", run, nil
	default:
		return Exhausted, "", run, fmt.Errorf("%w: failed to look up %s: %w", domain.ErrFetchExhausted, run.File(req.Level, req.Variable), err)
	}
}
