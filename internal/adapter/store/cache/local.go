// Package cache implements the on-disk cache of decompressed model files.
package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.ngs.io/pointcast/internal/adapter/store"
	"go.ngs.io/pointcast/internal/domain"
)

// DefaultMaxAge is how long model-level files are kept by Cull.
const DefaultMaxAge = 4 * time.Hour

// Store keeps files under {root}/{model}/{yyyymmdd}_{hh}/{name}.
type Store struct {
	root string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute cache root.
func (s *Store) Root() string {
	return s.root
}

// Path returns where id is stored, whether or not it exists.
func (s *Store) Path(id domain.FileIdentity) string {
	return filepath.Join(s.root, id.Family.Name, id.CycleDir(), id.LocalName())
}

// Lookup implements store.Cache.
func (s *Store) Lookup(id domain.FileIdentity) (string, error) {
	p := s.Path(id)
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%s: %w", id, store.ErrNotCached)
	case err != nil:
		return "", fmt.Errorf("failed to stat %s: %w", p, err)
	case info.IsDir():
		return "", fmt.Errorf("cache entry %s is a directory", p)
	}
	return p, nil
}

// Put implements store.Cache. Content is written to a temporary file and
// renamed into place so readers never see a partial file.
func (s *Store) Put(id domain.FileIdentity, r io.Reader) (string, error) {
	p := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cycle directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return p, nil
}

// Cull removes model-level files last modified before now-maxAge and prunes
// emptied cycle directories. Time-invariant files are kept. It returns the
// number of files removed.
func (s *Store) Cull(now time.Time, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	var dirs []string

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.root {
				dirs = append(dirs, p)
			}
			return nil
		}
		if strings.Contains(d.Name(), "time-invariant") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil {
				return fmt.Errorf("failed to remove %s: %w", p, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	// Deepest first so parents empty out after their children.
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
	return removed, nil
}
