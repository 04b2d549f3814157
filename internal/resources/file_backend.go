package resources

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend loads resources from the local filesystem, treating both
// bare paths and "file://" URIs as paths.
type FileBackend struct{}

func (FileBackend) Scheme() string { return "file" }

func (FileBackend) Load(ctx context.Context, uri string) (Resource, error) {
	path := strings.TrimPrefix(uri, "file://")
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Resource{}, fmt.Errorf("read %s: %w", path, ErrNotFound)
		}
		return Resource{}, fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	return Resource{URI: uri, MimeType: mimeType, Content: content}, nil
}
