package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/domain"
)

func axesGrid() *interp.Grid2D {
	return &interp.Grid2D{
		X: []float64{11.00, 11.02, 11.04},
		Y: []float64{48.00, 48.02, 48.04},
	}
}

func indexSet(nbrs []domain.GridNeighbor) map[int]bool {
	out := map[int]bool{}
	for _, n := range nbrs {
		out[n.Index] = true
	}
	return out
}

func TestNearest_ReturnsEnclosingCell(t *testing.T) {
	// Close to the upper-right corner of the lower-left cell. Point 5, across
	// the cell's right edge, is nearer than corner 0 but is not part of the cell.
	nbrs, err := Nearest(axesGrid(), 48.019, 11.019, 4)
	require.NoError(t, err)
	require.Len(t, nbrs, 4)
	assert.Equal(t, map[int]bool{0: true, 1: true, 3: true, 4: true}, indexSet(nbrs))
	assert.Equal(t, 4, nbrs[0].Index)
	assert.Equal(t, 0, nbrs[3].Index)
	for i := 1; i < len(nbrs); i++ {
		assert.LessOrEqual(t, nbrs[i-1].Distance, nbrs[i].Distance)
	}
	assert.Greater(t, nbrs[3].Distance, HaversineKm(48.019, 11.019, 48.02, 11.04))
}

func TestNearest_GrowsWindowBeyondCell(t *testing.T) {
	nbrs, err := Nearest(axesGrid(), 48.019, 11.019, 5)
	require.NoError(t, err)
	require.Len(t, nbrs, 5)
	// The 3x3 window holds every point; the five closest include point 5.
	assert.True(t, indexSet(nbrs)[5])
	assert.Equal(t, 4, nbrs[0].Index)
}

func TestNearest_Errors(t *testing.T) {
	_, err := Nearest(axesGrid(), 48.01, 11.01, 0)
	assert.Error(t, err)

	_, err = Nearest(axesGrid(), 49, 11.01, 4)
	assert.True(t, errors.Is(err, domain.ErrOutsideDomain))
}
