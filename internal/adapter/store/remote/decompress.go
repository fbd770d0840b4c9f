// Package remote implements the origins published files are fetched from.
package remote

import (
	"compress/bzip2"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	return r.close()
}

// Decompress wraps body according to the compression suffix of name:
// ".bz2" for DWD open data, ".zst" for mirrored objects. Other names pass
// through. Closing the result closes body.
func Decompress(name string, body io.ReadCloser) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(name, ".bz2"):
		return readCloser{Reader: bzip2.NewReader(body), close: body.Close}, nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(body)
		if err != nil {
			_ = body.Close()
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return readCloser{Reader: zr, close: func() error {
			zr.Close()
			return body.Close()
		}}, nil
	default:
		return body, nil
	}
}
