package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ucext/citizenconnect/internal/logger"
)

// MediaRoute is the path prefix the HTTP server serves local media under
const MediaRoute = "/media"

// LocalStager stores media on the local filesystem, served by the API
// server under MediaRoute
type LocalStager struct {
	dir     string
	baseURL string
	now     func() time.Time
}

var _ Stager = (*LocalStager)(nil)

// NewLocalStager creates the media directory if needed
func NewLocalStager(dir, publicBaseURL string) (*LocalStager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &LocalStager{
		dir:     dir,
		baseURL: strings.TrimSuffix(publicBaseURL, "/"),
		now:     time.Now,
	}, nil
}

// Dir returns the root directory of staged media
func (s *LocalStager) Dir() string {
	return s.dir
}

// Name implements Stager
func (s *LocalStager) Name() string {
	return "local"
}

// Put writes the media to a temporary file and renames it into place, so a
// reader never sees a partial file
func (s *LocalStager) Put(ctx context.Context, req StageRequest) (Staged, error) {
	detected, err := Detect(req.Data, req.Kind)
	if err != nil {
		return Staged{}, err
	}
	if err := ctx.Err(); err != nil {
		return Staged{}, err
	}

	key := path.Join(s.now().UTC().Format("2006-01-02"), uuid.NewString()+detected.Extension)
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Staged{}, fmt.Errorf("failed to create media directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return Staged{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(req.Data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Staged{}, fmt.Errorf("failed to write media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Staged{}, fmt.Errorf("failed to write media: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return Staged{}, fmt.Errorf("failed to set media permissions: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return Staged{}, fmt.Errorf("failed to move media into place: %w", err)
	}

	logger.Debugf("Staged %s (%s, %d bytes)", key, detected.ContentType, len(req.Data))

	return Staged{
		Key:         key,
		URL:         s.publicURL(key),
		ContentType: detected.ContentType,
		Kind:        detected.Kind,
		Size:        int64(len(req.Data)),
	}, nil
}

// URL implements Stager. Local URLs do not expire.
func (s *LocalStager) URL(_ context.Context, key string) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	return s.publicURL(key), nil
}

func (s *LocalStager) publicURL(key string) string {
	return s.baseURL + MediaRoute + "/" + key
}

// Delete removes the file behind key
func (s *LocalStager) Delete(_ context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete staged media %s: %w", key, err)
	}
	return nil
}

// resolve maps a key to a path inside the media directory
func (s *LocalStager) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
