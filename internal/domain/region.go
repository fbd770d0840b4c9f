package domain

import (
	"math"

	"github.com/paulmach/orb"
)

// regionBand is one latitude band of the regional coverage polygon together
// with the longitudes it spans.
type regionBand struct {
	bound orb.Bound // X is longitude, Y is latitude.
	// Points on the southern edge belong to the band to the south.
	exclusiveMinLat bool
}

func (b regionBand) contains(lat, lon float64) bool {
	if b.exclusiveMinLat && lat <= b.bound.Min.Lat() {
		return false
	}
	return b.bound.Contains(orb.Point{lon, lat})
}

// RegionSelector chooses the model domain that covers a point. The regional
// domain's rotated grid is approximated by two rectangles.
type RegionSelector struct {
	bands []regionBand
}

// NewRegionSelector returns the selector for the ICON-D2 coverage.
func NewRegionSelector() *RegionSelector {
	return &RegionSelector{
		bands: []regionBand{
			{bound: orb.Bound{Min: orb.Point{0, 44}, Max: orb.Point{17, 50}}},
			{bound: orb.Bound{Min: orb.Point{-1.5, 50}, Max: orb.Point{18.5, 57}}, exclusiveMinLat: true},
		},
	}
}

// Select returns DomainRegional when the point lies within one of the
// regional bands and DomainContinental otherwise.
func (s *RegionSelector) Select(lat, lon float64) Domain {
	lon = NormalizeLon180(lon)
	for _, b := range s.bands {
		if b.contains(lat, lon) {
			return DomainRegional
		}
	}
	return DomainContinental
}

// NormalizeLon180 maps a longitude into (-180, 180].
func NormalizeLon180(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon > 180 {
		lon -= 360
	} else if lon <= -180 {
		lon += 360
	}
	return lon
}
