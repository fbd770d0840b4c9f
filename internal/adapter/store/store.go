// Package store holds the data-availability plumbing: the local file cache
// interface, remote sources and the fetcher that moves files between them.
package store

import (
	"context"
	"errors"
	"io"

	"go.ngs.io/pointcast/internal/domain"
)

// ErrNotCached reports that a file is not present in the local cache. It is
// an expected outcome, not a failure.
var ErrNotCached = errors.New("not cached")

// Cache is the local file cache.
type Cache interface {
	// Lookup returns the local path of id or an error wrapping ErrNotCached.
	Lookup(id domain.FileIdentity) (string, error)
	// Put stores the decompressed content of id and returns its path.
	Put(id domain.FileIdentity, r io.Reader) (string, error)
}

// Source is a remote origin of published files.
type Source interface {
	Name() string
	// Open returns the decompressed content of id.
	Open(ctx context.Context, id domain.FileIdentity) (io.ReadCloser, error)
}
