package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryPoint_Validate(t *testing.T) {
	tests := []struct {
		name  string
		point QueryPoint
		valid bool
	}{
		{"regular", QueryPoint{Lat: 48.1, Lon: 11.5, Alt: 520}, true},
		{"longitude 0..360", QueryPoint{Lat: 52, Lon: 358.5, Alt: 100}, true},
		{"ellipsoid", QueryPoint{Lat: 48, Lon: 11, Alt: 600, AltitudeRef: AltitudeEllipsoid}, true},
		{"latitude out of range", QueryPoint{Lat: 91, Lon: 11, Alt: 0}, false},
		{"longitude out of range", QueryPoint{Lat: 48, Lon: -181, Alt: 0}, false},
		{"unknown reference", QueryPoint{Lat: 48, Lon: 11, Alt: 0, AltitudeRef: "agl"}, false},
		{"NaN latitude", QueryPoint{Lat: math.NaN(), Lon: 11, Alt: 0}, false},
		{"NaN longitude", QueryPoint{Lat: 48, Lon: math.NaN(), Alt: 0}, false},
		{"NaN altitude", QueryPoint{Lat: 48, Lon: 11, Alt: math.NaN()}, false},
		{"infinite altitude", QueryPoint{Lat: 48, Lon: 11, Alt: math.Inf(1)}, false},
		{"all NaN", QueryPoint{Lat: math.NaN(), Lon: math.NaN(), Alt: math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidPoint), "got %v", err)
		})
	}
}
