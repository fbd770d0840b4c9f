// Package usecase orchestrates point estimation: region and cycle
// selection, level resolution, the data-availability cascade and
// interpolation, and batch aggregation.
package usecase

import (
	"time"

	"go.uber.org/zap"

	"go.ngs.io/pointcast/internal/domain"
)

// RequestContext is the mutable state of one query point while it is being
// processed. It is owned by a single goroutine and threaded through every
// resolver and cascade call.
type RequestContext struct {
	Index  int
	Point  domain.QueryPoint
	Domain domain.Domain
	Family domain.ModelFamily

	// Now is the wall-clock reference for cycle resolution, fixed when the
	// point starts so every request of the point sees the same cycle.
	Now time.Time

	// Older is set once any cascade stage had to fall back to the previous
	// cycle. It stays set for the rest of the point.
	Older bool

	Logger *zap.Logger
}

// NewRequestContext creates the context for point index.
func NewRequestContext(index int, p domain.QueryPoint, d domain.Domain, family domain.ModelFamily, now time.Time, logger *zap.Logger) *RequestContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestContext{
		Index:  index,
		Point:  p,
		Domain: d,
		Family: family,
		Now:    now.UTC(),
		Logger: logger.With(
			zap.Int("point", index),
			zap.Float64("lat", p.Lat),
			zap.Float64("lon", p.Lon),
			zap.Float64("alt", p.Alt),
			zap.String("domain", string(d)),
		),
	}
}
