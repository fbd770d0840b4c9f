// Package hhl stores the time-invariant half-level height fields of a model
// and extracts per-column level profiles from them.
package hhl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/domain"
)

// Stack holds every half-level height field of one model on its regular
// grid. Fields[i] is half level i+1, flattened row-major like the grid
// reader's indices.
type Stack struct {
	Model  string      `msgpack:"model"`
	Cycle  string      `msgpack:"cycle"` // yyyymmddhh the fields were taken from.
	Lat    []float64   `msgpack:"lat"`
	Lon    []float64   `msgpack:"lon"`
	Fields [][]float32 `msgpack:"fields"`
}

// NewStack creates an empty stack on the grid g.
func NewStack(model, cycle string, g *interp.Grid2D) *Stack {
	return &Stack{
		Model: model,
		Cycle: cycle,
		Lat:   append([]float64(nil), g.Y...),
		Lon:   append([]float64(nil), g.X...),
	}
}

// Append adds the next half level. The field must share the stack's grid.
func (s *Stack) Append(g *interp.Grid2D) error {
	if len(g.Y) != len(s.Lat) || len(g.X) != len(s.Lon) {
		return fmt.Errorf("half level %d grid is %dx%d, expected %dx%d",
			len(s.Fields)+1, len(g.Y), len(g.X), len(s.Lat), len(s.Lon))
	}
	flat := make([]float32, 0, len(s.Lat)*len(s.Lon))
	for _, row := range g.Values {
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}
	s.Fields = append(s.Fields, flat)
	return nil
}

// Grid returns the stack's coordinate axes as a value-less grid, suitable
// for nearest-point search.
func (s *Stack) Grid() *interp.Grid2D {
	return &interp.Grid2D{X: s.Lon, Y: s.Lat}
}

// Column returns the half-level heights at a flat grid index.
func (s *Stack) Column(index int) (domain.LevelColumn, error) {
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("%w: %s stack is empty", domain.ErrLevelResolution, s.Model)
	}
	if index < 0 || index >= len(s.Fields[0]) {
		return nil, fmt.Errorf("%w: grid index %d out of range", domain.ErrLevelResolution, index)
	}
	col := make(domain.LevelColumn, len(s.Fields))
	for i, f := range s.Fields {
		col[i] = float64(f[index])
	}
	return col, nil
}

// Snapshot is the persisted set of stacks, keyed by model name.
type Snapshot struct {
	Stacks map[string]*Stack `msgpack:"stacks"`
}

// Save writes the snapshot as zstd-compressed msgpack.
func (s *Snapshot) Save(w io.Writer) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer zw.Close()

	if err := msgpack.NewEncoder(zw).Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by Save.
func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var s Snapshot
	if err := msgpack.NewDecoder(zr).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Stacks == nil {
		s.Stacks = map[string]*Stack{}
	}
	return &s, nil
}

// SaveFile writes the snapshot to path through a temporary file.
func (s *Snapshot) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if err := s.Save(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// LoadSnapshotFile reads a snapshot from path.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	//nolint:gosec // G304: snapshot path comes from configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadSnapshot(f)
}
