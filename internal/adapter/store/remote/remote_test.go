package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/pointcast/internal/domain"
)

// bzip2 -9 of "GRIB2 test payload\n".
var payloadBZ2 = []byte{
	0x42, 0x5a, 0x68, 0x39, 0x31, 0x41, 0x59, 0x26, 0x53, 0x59, 0x61, 0x32, 0x80, 0x91, 0x00, 0x00,
	0x02, 0xdf, 0x80, 0x00, 0x10, 0x40, 0x00, 0x10, 0x00, 0x10, 0xa0, 0x10, 0x00, 0x26, 0x04, 0xcc,
	0x20, 0x20, 0x00, 0x22, 0x10, 0x68, 0xf5, 0x30, 0xd2, 0x14, 0xc0, 0x01, 0x34, 0x07, 0x6d, 0xd6,
	0x02, 0x6a, 0x3d, 0x66, 0x8d, 0xe7, 0x9f, 0x17, 0x72, 0x45, 0x38, 0x50, 0x90, 0x61, 0x32, 0x80,
	0x91,
}

const payload = "GRIB2 test payload\n"

func testID() domain.FileIdentity {
	run := domain.ModelRun{
		Family: domain.ICONEU,
		Cycle:  time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
		Offset: 4,
	}
	return run.File(55, "qv")
}

func TestHTTPSource_OpenDecompresses(t *testing.T) {
	id := testID()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write(payloadBZ2)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/weather/nwp", time.Second)
	rc, err := src.Open(context.Background(), id)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Equal(t, "/weather/nwp/icon-eu/grib/09/qv/icon-eu_europe_regular-lat-lon_model-level_2024051009_004_55_QV.grib2.bz2", gotPath)
}

func TestHTTPSource_StatusAndTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, time.Second).Open(context.Background(), testID())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)
	_, err = NewHTTPSource(srv.URL, time.Second).Open(ctx, testID())
	assert.Error(t, err)
}

func TestDecompress_Zstd(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	rc, err := Decompress("x.grib2.zst", io.NopCloser(&buf))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, payload, string(data))
}

func TestDecompress_PassThrough(t *testing.T) {
	rc, err := Decompress("x.grib2", io.NopCloser(bytes.NewReader([]byte("raw"))))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(data))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t,
		"mirror/icon-eu/grib/09/qv/icon-eu_europe_regular-lat-lon_model-level_2024051009_004_55_QV.grib2.zst",
		ObjectKey("mirror", testID()))
}
