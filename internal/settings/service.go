package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Repository persists the settings singleton.
type Repository interface {
	// LoadSettings returns the stored settings merged with defaults. A store
	// that has never been written yields Defaults.
	LoadSettings(ctx context.Context) (Settings, error)
	// SaveSettings writes only the given keys and returns the merged result.
	SaveSettings(ctx context.Context, values map[string]json.RawMessage) (Settings, error)
}

// Service caches the settings singleton and drops the cache on every write.
type Service struct {
	repo   Repository
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Settings
	// gen advances on every invalidation. A load only fills the cache if no
	// invalidation happened while it ran.
	gen uint64
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Get returns the current settings. Any load failure is reported as
// ErrUnavailable.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	s.mu.RLock()
	if s.cached != nil {
		v := *s.cached
		s.mu.RUnlock()
		return v, nil
	}
	gen := s.gen
	s.mu.RUnlock()

	v, err := s.repo.LoadSettings(ctx)
	if err != nil {
		s.logger.Error("load settings", "error", err)
		return Settings{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cached = &v
	}
	s.mu.Unlock()
	return v, nil
}

// Update validates and persists p. Only the fields p sets are written, so
// concurrent updates of different fields do not clobber each other.
func (s *Service) Update(ctx context.Context, p Patch) (Settings, error) {
	p, err := p.Normalize()
	if err != nil {
		return Settings{}, err
	}
	if p.Empty() {
		return Settings{}, fmt.Errorf("%w: no settings provided", ErrInvalid)
	}
	values, err := p.Values()
	if err != nil {
		return Settings{}, err
	}

	s.Invalidate()
	v, err := s.repo.SaveSettings(ctx, values)
	// Loads that overlapped the save may have read the old row.
	s.Invalidate()
	if err != nil {
		s.logger.Error("save settings", "error", err)
		return Settings{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Info("settings updated", "fields", len(values))
	return v, nil
}

// Invalidate drops the cached value so the next Get reloads.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.gen++
	s.mu.Unlock()
}
