package domain

import (
	"errors"
	"fmt"
)

// Per-point failure kinds. A point that fails with one of these is reported
// and skipped; the rest of the batch continues.
var (
	// ErrOutOfForecastWindow means the requested time lies outside the
	// retrievable forecast horizon of the selected model.
	ErrOutOfForecastWindow = errors.New("out of forecast window")

	// ErrFetchExhausted means no cached or fetchable file exists for a
	// (level, variable, time) request across both model generations.
	ErrFetchExhausted = errors.New("fetch exhausted")

	// ErrLevelResolution means the level column at a grid index is missing
	// or degenerate.
	ErrLevelResolution = errors.New("level resolution failure")

	// ErrOutsideDomain means the point is outside the extent of a grid file.
	ErrOutsideDomain = errors.New("outside model domain")

	// ErrInvalidPoint means the query itself is malformed.
	ErrInvalidPoint = errors.New("invalid query point")
)

// ErrorKind returns the taxonomy name of err, or "Internal" for errors that
// do not wrap a known kind.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOutOfForecastWindow):
		return "OutOfForecastWindow"
	case errors.Is(err, ErrFetchExhausted):
		return "FetchExhausted"
	case errors.Is(err, ErrLevelResolution):
		return "LevelResolutionFailure"
	case errors.Is(err, ErrOutsideDomain):
		return "OutsideDomain"
	case errors.Is(err, ErrInvalidPoint):
		return "InvalidPoint"
	default:
		return "Internal"
	}
}

// PointError records the failure of a single query point within a batch.
type PointError struct {
	Index int
	Point QueryPoint
	Err   error
}

// Kind returns the taxonomy name of the wrapped error.
func (e *PointError) Kind() string {
	return ErrorKind(e.Err)
}

func (e *PointError) Error() string {
	return fmt.Sprintf("point %d (%.4f, %.4f, %.0f m): %v", e.Index, e.Point.Lat, e.Point.Lon, e.Point.Alt, e.Err)
}

func (e *PointError) Unwrap() error {
	return e.Err
}
