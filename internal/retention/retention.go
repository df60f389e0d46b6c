// Package retention bounds how many builds each (app, platform, channel)
// group keeps.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/settings"
)

// Repository is the subset of the build store the engine needs.
type Repository interface {
	ListGroup(ctx context.Context, g model.Group, source model.BuildSource) ([]model.Build, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	DeleteBuild(ctx context.Context, id string) (bool, error)
	CountFileReferences(ctx context.Context, fileName string) (int, error)
}

// SettingsSource supplies the current retention settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// FileDeleter removes stored artifacts. It never fails; problems are logged.
type FileDeleter interface {
	Delete(ctx context.Context, cfg settings.Settings, storedName string)
}

// Result summarizes one pass over a group.
type Result struct {
	Group      model.Group
	Candidates int
	Deleted    []string
	// Disabled is set when auto-clean is off and nothing was examined.
	Disabled bool
}

// Engine enforces the per-group build cap.
type Engine struct {
	repo     Repository
	settings SettingsSource
	files    FileDeleter
	logger   *slog.Logger
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewEngine returns an engine that reads its limits from settings on every pass.
func NewEngine(repo Repository, settings SettingsSource, files FileDeleter, logger *slog.Logger) *Engine {
	return &Engine{
		repo:     repo,
		settings: settings,
		files:    files,
		logger:   logger,
		timeout:  2 * time.Minute,
	}
}

// Prune deletes the builds of g beyond settings.maxBuildsPerGroup, oldest
// first. Under the CIOnly policy only CI builds are counted or deleted.
// Each pass re-reads the group, so overlapping passes converge.
func (e *Engine) Prune(ctx context.Context, g model.Group) (Result, error) {
	res := Result{Group: g}
	cfg, err := e.settings.Get(ctx)
	if err != nil {
		return res, err
	}
	if !cfg.EnableAutoClean {
		e.logger.Debug("auto-clean disabled", "group", g.String())
		res.Disabled = true
		return res, nil
	}

	var source model.BuildSource
	if cfg.DeletePolicy == settings.DeleteCIOnly {
		source = model.SourceCI
	}
	builds, err := e.repo.ListGroup(ctx, g, source)
	if err != nil {
		return res, fmt.Errorf("list group %s: %w", g, err)
	}
	res.Candidates = len(builds)

	limit := cfg.MaxBuildsPerGroup
	if len(builds) <= limit {
		return res, nil
	}

	var errs []error
	for _, b := range builds[limit:] {
		removed, err := e.deleteBuild(ctx, cfg, b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed {
			res.Deleted = append(res.Deleted, b.ID)
		}
	}
	if len(res.Deleted) > 0 {
		e.logger.Info("pruned builds", "group", g.String(), "deleted", len(res.Deleted), "limit", limit, "policy", cfg.DeletePolicy)
	}
	return res, errors.Join(errs...)
}

// deleteBuild removes the record, then the artifact once no remaining build
// (a rebuild) points at it. References are counted after the delete.
func (e *Engine) deleteBuild(ctx context.Context, cfg settings.Settings, b model.Build) (bool, error) {
	removed, err := e.repo.DeleteBuild(ctx, b.ID)
	if err != nil {
		return false, fmt.Errorf("delete build %s: %w", b.ID, err)
	}
	if removed && b.FileName != "" {
		refs, err := e.repo.CountFileReferences(ctx, b.FileName)
		if err != nil {
			e.logger.Warn("count file references", "build", b.ID, "error", err)
		} else if refs == 0 {
			e.files.Delete(ctx, cfg, b.FileName)
		}
	}
	return removed, nil
}

// Trigger prunes g in the background, detached from the caller's context.
// Errors are logged.
func (e *Engine) Trigger(g model.Group) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if _, err := e.Prune(ctx, g); err != nil {
			e.logger.Error("retention pass failed", "group", g.String(), "error", err)
		}
	}()
}

// Wait blocks until every triggered pass has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}
