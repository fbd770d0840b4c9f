package grid

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/domain"
)

// Converter turns a GRIB2 file into a NetCDF file readable by NetCDFReader.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// Wgrib2 converts with the wgrib2 command-line tool.
type Wgrib2 struct {
	Binary string // Defaults to "wgrib2" on PATH.
	Logger *zap.Logger
}

// Convert runs `wgrib2 src -netcdf dst`, writing through a temporary file.
func (w Wgrib2) Convert(ctx context.Context, src, dst string) error {
	bin := w.Binary
	if bin == "" {
		bin = "wgrib2"
	}
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tmp := dst + ".tmp"
	//nolint:gosec // G204: binary comes from configuration, paths from the local cache.
	cmd := exec.CommandContext(ctx, bin, src, "-netcdf", tmp)
	logger.Debug("running wgrib2", zap.String("cmd", cmd.String()))
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to convert %s: %w: %s", filepath.Base(src), err, strings.TrimSpace(string(out)))
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename converted file: %w", err)
	}
	return nil
}

// ConvertingReader converts GRIB2 inputs to NetCDF siblings on first use and
// delegates to a Reader. Other paths are passed through unchanged.
type ConvertingReader struct {
	reader    FieldReader
	converter Converter
	group     singleflight.Group
}

// NewConvertingReader wraps reader with converter.
func NewConvertingReader(reader FieldReader, converter Converter) *ConvertingReader {
	return &ConvertingReader{reader: reader, converter: converter}
}

// Nearest implements Reader.
func (c *ConvertingReader) Nearest(ctx context.Context, path string, lat, lon float64, n int) ([]domain.GridNeighbor, error) {
	p, err := c.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return c.reader.Nearest(ctx, p, lat, lon, n)
}

// Value implements Reader.
func (c *ConvertingReader) Value(ctx context.Context, path string, index int) (float64, error) {
	p, err := c.resolve(ctx, path)
	if err != nil {
		return 0, err
	}
	return c.reader.Value(ctx, p, index)
}

// Field implements FieldReader.
func (c *ConvertingReader) Field(ctx context.Context, path string) (*interp.Grid2D, error) {
	p, err := c.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return c.reader.Field(ctx, p)
}

// NetCDFPath returns the converted sibling of a GRIB2 path.
func NetCDFPath(path string) string {
	return strings.TrimSuffix(path, ".grib2") + ".nc"
}

func (c *ConvertingReader) resolve(ctx context.Context, path string) (string, error) {
	if !strings.HasSuffix(path, ".grib2") {
		return path, nil
	}
	dst := NetCDFPath(path)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	_, err, _ := c.group.Do(dst, func() (any, error) {
		if _, err := os.Stat(dst); err == nil {
			return nil, nil
		}
		return nil, c.converter.Convert(ctx, path, dst)
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}
