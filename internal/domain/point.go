// Package domain contains the model-independent rules of the point forecast
// engine: query points, model families, cycle resolution, region selection
// and vertical level resolution.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// AltitudeReference identifies the vertical datum of a query altitude.
type AltitudeReference string

const (
	// AltitudeMSL is geometric height above mean sea level (the model's datum).
	AltitudeMSL AltitudeReference = "msl"
	// AltitudeEllipsoid is height above the WGS84 ellipsoid, as reported by GPS.
	AltitudeEllipsoid AltitudeReference = "ellipsoid"
)

// DefaultVariables are the model-level variables requested when none are configured.
var DefaultVariables = []string{"t", "p", "qv", "u", "v", "w"}

// QueryPoint is a location in 4-D space for which an estimate is requested.
type QueryPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"` // Meters.

	// Time is the UTC valid time. Nil means "now".
	Time *time.Time `json:"time,omitempty"`

	// AltitudeRef defaults to AltitudeMSL.
	AltitudeRef AltitudeReference `json:"altitude_ref,omitempty"`
}

// Validate checks the point's coordinates.
func (p QueryPoint) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{{"latitude", p.Lat}, {"longitude", p.Lon}, {"altitude", p.Alt}} {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidPoint, c.name, c.v)
		}
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90, got %.6f", ErrInvalidPoint, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 360 {
		return fmt.Errorf("%w: longitude must be between -180 and 360, got %.6f", ErrInvalidPoint, p.Lon)
	}
	switch p.AltitudeRef {
	case "", AltitudeMSL, AltitudeEllipsoid:
	default:
		return fmt.Errorf("%w: unknown altitude reference %q", ErrInvalidPoint, p.AltitudeRef)
	}
	return nil
}

// GridNeighbor is one grid point near a query location.
type GridNeighbor struct {
	Index    int     // Flat index into the grid field.
	Distance float64 // Horizontal ground distance in km.
	Lat      float64
	Lon      float64
}

// ResultRow is the output for one query point.
type ResultRow struct {
	Index int // Position of Point in the input list.
	Point QueryPoint
	Time  time.Time // Resolved valid time.
	Level int       // Nearest full model level, 1-based.
	Model string

	// Variables lists the requested variables in request order; Values holds
	// one estimate per variable at the same position.
	Variables []string
	Values    []float64
}

// Value returns the estimate for the named variable.
func (r ResultRow) Value(variable string) (float64, bool) {
	for i, v := range r.Variables {
		if v == variable {
			return r.Values[i], true
		}
	}
	return 0, false
}

// NormalizeVariables lower-cases, trims and de-duplicates variable names while
// preserving order. An empty list yields DefaultVariables.
func NormalizeVariables(vars []string) []string {
	seen := make(map[string]bool, len(vars))
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultVariables...)
	}
	return out
}
