package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FileStore writes artifacts into a local directory and returns file:// URLs.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", abs, err)
	}
	return &FileStore{dir: abs}, nil
}

func (s *FileStore) UploadArtifact(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, objectName(contentType))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", path, err)
	}
	log.Debug().Str("module", "storage").Str("path", path).Int("size", len(data)).Msg("artifact stored")
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}
