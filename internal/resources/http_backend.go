package resources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend loads resources over http(s). Shared across both schemes
// since neither has scheme-specific behavior beyond the URL itself.
type HTTPBackend struct {
	Client *http.Client
}

// NewHTTPBackend returns a backend with a bounded default timeout — the
// Resource Loader must not hang the run loop on a slow remote host.
func NewHTTPBackend() *HTTPBackend {
	return &HTTPBackend{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (b *HTTPBackend) Scheme() string { return "http" }

func (b *HTTPBackend) Load(ctx context.Context, uri string) (Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return Resource{}, fmt.Errorf("build request for %s: %w", uri, err)
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return Resource{}, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Resource{}, fmt.Errorf("fetch %s: %w", uri, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return Resource{}, fmt.Errorf("fetch %s: unexpected status %d", uri, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return Resource{}, fmt.Errorf("read body of %s: %w", uri, err)
	}
	return Resource{URI: uri, MimeType: resp.Header.Get("Content-Type"), Content: content}, nil
}

// HTTPSBackend registers the same implementation under the "https" scheme;
// Loader dispatches by scheme string, so http and https need distinct
// registrations even though they share all behavior.
type HTTPSBackend struct {
	*HTTPBackend
}

func (b *HTTPSBackend) Scheme() string { return "https" }
