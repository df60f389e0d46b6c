// Package storage persists build artifacts on local disk or in an
// S3-compatible bucket and derives their download URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/apprelay/apprelay/internal/settings"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	// ErrNotConfigured is returned when settings ask for object storage but
	// the process started without a bucket.
	ErrNotConfigured = errors.New("object storage not configured")
)

// LocalDownloadPath is the route prefix local artifacts are served under.
const LocalDownloadPath = "/api/local-downloads/"

// ObjectStore is the subset of the S3 client the file store needs.
type ObjectStore interface {
	PutObject(ctx context.Context, name string, body io.Reader, size int64, contentType string) error
	DeleteObject(ctx context.Context, name string) error
	ObjectURL(name string) string
}

// Object describes a stored artifact.
type Object struct {
	Name string
	URL  string
	Size int64
}

// Store picks a backend per call from the current settings.
type Store struct {
	local  *Local
	object ObjectStore
	logger *slog.Logger
}

// New returns a Store. object may be nil when no bucket is configured.
func New(object ObjectStore, logger *slog.Logger) *Store {
	return &Store{local: &Local{}, object: object, logger: logger}
}

// Local exposes the disk backend for serving downloads.
func (s *Store) Local() *Local { return s.local }

// Check reports whether uploads under cfg can succeed with the configured
// backends.
func (s *Store) Check(cfg settings.Settings) error {
	if cfg.UseObjectStorage && s.object == nil {
		return ErrNotConfigured
	}
	return nil
}

// Upload stores r under a fresh unique name derived from suggestedName's extension.
func (s *Store) Upload(ctx context.Context, cfg settings.Settings, r io.Reader, size int64, suggestedName, contentType string) (Object, error) {
	name := StoredName(suggestedName)
	if err := s.Check(cfg); err != nil {
		return Object{}, err
	}
	if cfg.UseObjectStorage {
		if err := s.object.PutObject(ctx, name, r, size, contentType); err != nil {
			return Object{}, fmt.Errorf("upload %s: %w", name, err)
		}
		return Object{Name: name, URL: s.object.ObjectURL(name), Size: size}, nil
	}

	n, err := s.local.Write(cfg.LocalBuildPath, name, r)
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return Object{Name: name, URL: LocalURL(cfg.APIBaseURL, name), Size: n}, nil
}

// Delete removes storedName from every backend it might live in. Failures
// are logged, never returned; a missing file is not a failure.
func (s *Store) Delete(ctx context.Context, cfg settings.Settings, storedName string) {
	if err := ValidateStoredName(storedName); err != nil {
		s.logger.Warn("skip file delete", "name", storedName, "error", err)
		return
	}
	if err := s.local.Remove(cfg.LocalBuildPath, storedName); err != nil {
		s.logger.Warn("delete local file", "name", storedName, "error", err)
	}
	if s.object != nil {
		if err := s.object.DeleteObject(ctx, storedName); err != nil {
			s.logger.Warn("delete object", "name", storedName, "error", err)
		}
	}
}

// StoredName returns "<uuid>.<ext>", with "bin" when suggestedName has no extension.
func StoredName(suggestedName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(suggestedName), "."))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = "bin"
	}
	return uuid.NewString() + "." + ext
}

// LocalURL is the download URL for a locally stored artifact.
func LocalURL(apiBaseURL, storedName string) string {
	return strings.TrimRight(apiBaseURL, "/") + LocalDownloadPath + storedName
}

// ValidateStoredName rejects names that could escape the storage directory.
func ValidateStoredName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
