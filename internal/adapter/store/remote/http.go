package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.ngs.io/pointcast/internal/domain"
)

// DefaultTimeout bounds a single download.
const DefaultTimeout = 60 * time.Second

// HTTPSource downloads files from the DWD open-data server.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source for baseURL. An empty baseURL selects
// domain.DefaultBaseURL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if baseURL == "" {
		baseURL = domain.DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements store.Source.
func (s *HTTPSource) Name() string {
	return "http"
}

// Open implements store.Source.
func (s *HTTPSource) Open(ctx context.Context, id domain.FileIdentity) (io.ReadCloser, error) {
	url := id.URL(s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: HTTP status code %d", url, resp.StatusCode)
	}

	return Decompress(id.Filename(), resp.Body)
}
