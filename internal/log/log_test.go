package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pointcast.log")
	logger, err := New(Options{Level: "debug", Format: "console", File: path})
	require.NoError(t, err)

	logger.Debug("cascade stage")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"cascade stage"`)
}

func TestNew_Level(t *testing.T) {
	logger, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	require.NoError(t, Init(Options{Level: "info", Format: "json"}))
	assert.NotNil(t, GetZapLogger())
	assert.NotNil(t, GetSugaredLogger())
	Infow("initialized", "component", "test")
	Sync()
}
