package grid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtureConverter struct {
	t     *testing.T
	calls atomic.Int32
	fail  bool
}

func (f *fixtureConverter) Convert(_ context.Context, _, dst string) error {
	f.calls.Add(1)
	if f.fail {
		return fmt.Errorf("conversion failed")
	}
	writeTestField(f.t, dst)
	return nil
}

func TestConvertingReader_ConvertsOnce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "icon-d2_germany_regular-lat-lon_model-level_2024051012_002_60_t.grib2")
	require.NoError(t, os.WriteFile(src, []byte("GRIB"), 0o644))

	conv := &fixtureConverter{t: t}
	r := NewConvertingReader(NewNetCDFReader(8, time.Minute), conv)
	ctx := context.Background()

	nbrs, err := r.Nearest(ctx, src, 48.03, 11.03, 4)
	require.NoError(t, err)
	require.Len(t, nbrs, 4)

	v, err := r.Value(ctx, src, 8)
	require.NoError(t, err)
	assert.Equal(t, 202.0, v)

	assert.Equal(t, int32(1), conv.calls.Load())
	assert.FileExists(t, NetCDFPath(src))
}

func TestConvertingReader_PassThroughAndFailure(t *testing.T) {
	dir := t.TempDir()
	nc := filepath.Join(dir, "hhl.nc")
	writeTestField(t, nc)

	conv := &fixtureConverter{t: t, fail: true}
	r := NewConvertingReader(NewNetCDFReader(8, time.Minute), conv)
	ctx := context.Background()

	_, err := r.Value(ctx, nc, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), conv.calls.Load())

	_, err = r.Value(ctx, filepath.Join(dir, "missing.grib2"), 0)
	assert.Error(t, err)
}

func TestNetCDFPath(t *testing.T) {
	assert.Equal(t, "/c/a_t.nc", NetCDFPath("/c/a_t.grib2"))
}
