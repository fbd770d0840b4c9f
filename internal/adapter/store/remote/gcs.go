package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"go.ngs.io/pointcast/internal/domain"
)

// GCSSource reads zstd-compressed mirrors of published files from a Google
// Cloud Storage bucket. Objects are keyed {prefix}/{remote path}.zst with the
// .bz2 suffix removed.
type GCSSource struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSSource connects to bucket. Credentials come from the JSON in the
// POINTCAST_GCS_CREDENTIALS environment variable when set, and from the
// application default credentials otherwise.
func NewGCSSource(ctx context.Context, bucket, prefix string) (*GCSSource, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("POINTCAST_GCS_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSSource{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: prefix,
	}, nil
}

// ObjectKey returns the mirror object name of id.
func ObjectKey(prefix string, id domain.FileIdentity) string {
	return path.Join(prefix, strings.TrimSuffix(id.RemotePath(), ".bz2")+".zst")
}

// Name implements store.Source.
func (g *GCSSource) Name() string {
	return "gcs"
}

// Open implements store.Source.
func (g *GCSSource) Open(ctx context.Context, id domain.FileIdentity) (io.ReadCloser, error) {
	key := ObjectKey(g.prefix, id)
	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("object %s not mirrored: %w", key, err)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	return Decompress(key, r)
}

// Close releases the storage client.
func (g *GCSSource) Close() error {
	return g.client.Close()
}
