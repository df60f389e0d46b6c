// Package service implements the build lifecycle on top of the store, the
// file store and the retention engine.
package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/notify"
	"github.com/apprelay/apprelay/internal/retention"
	"github.com/apprelay/apprelay/internal/settings"
	"github.com/apprelay/apprelay/internal/storage"
	"github.com/apprelay/apprelay/internal/store"
)

// Config tunes the simulated CI pipeline.
type Config struct {
	// CIDelay is how long a triggered pipeline "runs" before its result is
	// written back.
	CIDelay time.Duration
	// CISuccessRate is the probability in [0,1] that a pipeline succeeds.
	CISuccessRate float64
}

func DefaultConfig() Config {
	return Config{CIDelay: 15 * time.Second, CISuccessRate: 0.8}
}

// Deps are the collaborators a Service orchestrates.
type Deps struct {
	Store     store.Store
	Settings  *settings.Service
	Files     *storage.Store
	Retention *retention.Engine
	Notifier  notify.Notifier
}

type Service struct {
	store     store.Store
	settings  *settings.Service
	files     *storage.Store
	retention *retention.Engine
	notifier  notify.Notifier
	validate  *validator.Validate
	cfg       Config
	logger    *slog.Logger
	random    func() float64

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func New(deps Deps, cfg Config, logger *slog.Logger) *Service {
	n := deps.Notifier
	if n == nil {
		n = notify.NewLogNotifier(logger)
	}
	return &Service{
		store:     deps.Store,
		settings:  deps.Settings,
		files:     deps.Files,
		retention: deps.Retention,
		notifier:  n,
		validate:  newValidator(),
		cfg:       cfg,
		logger:    logger,
		random:    rand.Float64,
		stop:      make(chan struct{}),
	}
}

// Settings returns the current settings.
func (s *Service) Settings(ctx context.Context) (settings.Settings, error) {
	return s.settings.Get(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, p settings.Patch) (settings.Settings, error) {
	return s.settings.Update(ctx, p)
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Stop cancels pending CI simulations. Safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until background work started by the service has finished:
// CI simulations, notifications and retention passes.
func (s *Service) Wait() {
	s.wg.Wait()
	s.retention.Wait()
}

// goBackground runs fn detached from any request context.
func (s *Service) goBackground(name string, timeout time.Duration, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error(name+" failed", "error", err)
		}
	}()
}

func (s *Service) notifyNewBuild(cfg settings.Settings, b *model.Build) {
	if !cfg.NotifyOnNewBuild {
		return
	}
	nb := *b
	s.goBackground("new build notification", 30*time.Second, func(ctx context.Context) error {
		return s.notifier.NewBuild(ctx, &nb)
	})
}
