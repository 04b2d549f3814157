// Package resources implements the Resource Loader (spec §4.4): a single
// interface over file, HTTP, and S3-backed resource sources, with an
// optional filesystem watch that re-announces a resource on the event bus
// when its backing file changes.
package resources

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no backend recognizes a URI's scheme, or the
// resource does not exist under that backend.
var ErrNotFound = errors.New("resources: not found")

// Resource is a single loaded resource: its URI, MIME type, and content.
type Resource struct {
	URI      string
	MimeType string
	Content  []byte
}

// Backend loads resources for one URI scheme ("file", "http"/"https", "s3").
type Backend interface {
	Scheme() string
	Load(ctx context.Context, uri string) (Resource, error)
}

// Loader dispatches to the Backend registered for a URI's scheme.
type Loader struct {
	backends map[string]Backend
}

// New returns a Loader with no backends registered.
func New() *Loader {
	return &Loader{backends: make(map[string]Backend)}
}

// Register adds backend under its own Scheme(), replacing any previous
// backend for that scheme.
func (l *Loader) Register(backend Backend) {
	l.backends[backend.Scheme()] = backend
}

// Load parses uri's scheme and delegates to the matching backend. A bare
// path with no "scheme://" prefix is treated as a "file" URI.
func (l *Loader) Load(ctx context.Context, uri string) (Resource, error) {
	scheme := schemeOf(uri)
	backend, ok := l.backends[scheme]
	if !ok {
		return Resource{}, fmt.Errorf("resources: no backend registered for scheme %q: %w", scheme, ErrNotFound)
	}
	return backend.Load(ctx, uri)
}

func schemeOf(uri string) string {
	if idx := strings.Index(uri, "://"); idx != -1 {
		return uri[:idx]
	}
	return "file"
}
