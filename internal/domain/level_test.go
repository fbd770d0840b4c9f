package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLevel_Scenarios(t *testing.T) {
	column := FullLevelColumn{100, 300, 500, 700}

	tests := []struct {
		name         string
		alt          float64
		wantNearest  int
		wantNeighbor int
	}{
		{"between levels looks upward", 520, 3, 4},
		{"below lowest level", 50, 1, 2},
		{"above highest level", 900, 4, 3},
		{"exact match looks downward", 300, 2, 1},
		{"above nearest looks upward", 320, 2, 3},
		{"below nearest looks downward", 480, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := ResolveLevel(column, tt.alt)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNearest, pair.Nearest)
			assert.Equal(t, tt.wantNeighbor, pair.Neighbor)
			assert.Equal(t, column.Altitude(tt.wantNearest), pair.NearestAlt)
			assert.Equal(t, column.Altitude(tt.wantNeighbor), pair.NeighborAlt)
		})
	}
}

func TestResolveLevel_DescendingColumnBrackets(t *testing.T) {
	// ICON ordering: level 1 is the model top.
	column := FullLevelColumn{20000, 12000, 6000, 2500, 900, 300, 50}

	for alt := 60.0; alt < 19990; alt += 37 {
		pair, err := ResolveLevel(column, alt)
		require.NoError(t, err)
		assert.True(t, pair.Brackets(alt), "alt %.0f not bracketed by levels %d/%d (%.0f/%.0f)",
			alt, pair.Nearest, pair.Neighbor, pair.NearestAlt, pair.NeighborAlt)
	}
}

func TestResolveLevel_AscendingColumnBrackets(t *testing.T) {
	column := FullLevelColumn{100, 300, 500, 700}

	for alt := 101.0; alt < 700; alt += 3 {
		pair, err := ResolveLevel(column, alt)
		require.NoError(t, err)
		assert.True(t, pair.Brackets(alt), "alt %.0f not bracketed", alt)
	}
}

func TestResolveLevel_TieKeepsFirstMinimum(t *testing.T) {
	pair, err := ResolveLevel(FullLevelColumn{100, 300, 500}, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, pair.Nearest)
}

func TestResolveLevel_Degenerate(t *testing.T) {
	for _, column := range []FullLevelColumn{nil, {}, {100}} {
		_, err := ResolveLevel(column, 100)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLevelResolution))
	}
}

func TestResolveLevel_NonFiniteAltitude(t *testing.T) {
	for _, alt := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := ResolveLevel(FullLevelColumn{700, 500, 300, 100}, alt)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidPoint))
	}
}

func TestLevelColumn_FullLevels(t *testing.T) {
	half := LevelColumn{1000, 800, 400, 0}
	assert.Equal(t, FullLevelColumn{900, 600, 200}, half.FullLevels())
	assert.Nil(t, LevelColumn{5}.FullLevels())
}
