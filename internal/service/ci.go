package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/settings"
	"github.com/apprelay/apprelay/internal/storage"
	"github.com/apprelay/apprelay/internal/store"
)

// TriggerInput asks the CI pipeline to build a branch.
type TriggerInput struct {
	ProjectName         string         `json:"projectName" validate:"required"`
	Branch              string         `json:"branch" validate:"required"`
	TriggeredByUsername string         `json:"triggeredByUsername" validate:"required"`
	Platform            model.Platform `json:"platform" validate:"required,platform"`
	Channel             model.Channel  `json:"channel" validate:"required,channel"`
}

// ciEnabled loads settings and fails with ErrCIDisabled when CI is off.
func (s *Service) ciEnabled(ctx context.Context) (settings.Settings, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return cfg, err
	}
	if !cfg.CIIntegrationEnabled {
		return cfg, ErrCIDisabled
	}
	return cfg, nil
}

// TriggerCI records a placeholder CI build and starts a simulated pipeline
// that later writes its outcome back to the record.
func (s *Service) TriggerCI(ctx context.Context, in TriggerInput) (*model.Build, error) {
	in.ProjectName = strings.TrimSpace(in.ProjectName)
	in.Branch = strings.TrimSpace(in.Branch)
	in.TriggeredByUsername = strings.TrimSpace(in.TriggeredByUsername)
	cfg, err := s.ciEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	ciID := "ci-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	short := ciID[:5]
	base := strings.TrimSuffix(cfg.APIBaseURL, "/")
	id := uuid.NewString()
	placeholder := ciID + ".placeholder"
	b := &model.Build{
		ID:             id,
		AppName:        in.ProjectName,
		VersionName:    fmt.Sprintf("0.0.0-%s-%s", in.Branch, short),
		VersionCode:    "0",
		Platform:       in.Platform,
		Channel:        in.Channel,
		Changelog:      fmt.Sprintf("Build triggered from branch: %s by %s. Awaiting CI completion.", in.Branch, in.TriggeredByUsername),
		BuildStatus:    model.StatusSuccess,
		PipelineStatus: model.StatusInProgress,
		CommitHash:     in.Branch,
		DownloadURL:    storage.LocalURL(base, placeholder),
		QRCodeURL:      QRCodeURL(base, id),
		Size:           "N/A",
		FileName:       placeholder,
		FileType:       "application/octet-stream",
		Source:         model.SourceCI,
		CIBuildID:      ciID,
		TriggeredBy:    in.TriggeredByUsername,
		CILogsURL:      base + "/ci/logs/" + ciID,
	}
	created, err := s.store.CreateBuild(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("record CI build: %w", err)
	}
	s.logger.Info("CI build triggered", "build", created.ID, "ci_build", ciID, "branch", in.Branch, "by", in.TriggeredByUsername)

	s.simulatePipeline(*created, in.Branch, base)
	return created, nil
}

func (s *Service) simulatePipeline(b model.Build, branch, base string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.cfg.CIDelay)
		defer timer.Stop()
		select {
		case <-s.stop:
			s.logger.Info("CI simulation cancelled", "build", b.ID)
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p := s.pipelineResult(b, branch, base)
		updated, err := s.store.UpdateBuildFields(ctx, b.ID, p)
		if err != nil {
			s.logger.Error("CI result write-back", "build", b.ID, "error", err)
			return
		}
		s.logger.Info("CI pipeline finished", "build", b.ID, "status", updated.PipelineStatus)
		if updated.Succeeded() {
			s.retention.Trigger(updated.Group())
			if cfg, err := s.settings.Get(ctx); err == nil {
				s.notifyNewBuild(cfg, updated)
			}
		}
	}()
}

// pipelineResult draws the simulated outcome for b.
func (s *Service) pipelineResult(b model.Build, branch, base string) store.BuildPatch {
	status := model.StatusFailed
	if s.random() < s.cfg.CISuccessRate {
		status = model.StatusSuccess
	}
	short := b.CIBuildID[:5]
	changelog := b.Changelog + "\nCI process failed."
	size := "N/A"
	fileName := b.FileName
	downloadURL := "#"
	p := store.BuildPatch{
		BuildStatus:    &status,
		PipelineStatus: &status,
		Changelog:      &changelog,
		Size:           &size,
		FileName:       &fileName,
		DownloadURL:    &downloadURL,
	}
	if status == model.StatusSuccess {
		ext := "apk"
		if b.Platform == model.PlatformIOS {
			ext = "ipa"
		}
		changelog = b.Changelog + "\nCI process completed successfully."
		size = fmt.Sprintf("%.1f MB", rand.Float64()*100+50)
		fileName = b.CIBuildID + "." + ext
		downloadURL = storage.LocalURL(base, fileName)
		versionName := fmt.Sprintf("1.0.0-%s-%s", branch, short)
		versionCode := fmt.Sprintf("%d", rand.IntN(100)+1)
		p.VersionName = &versionName
		p.VersionCode = &versionCode
	}
	return p
}

func (s *Service) ListRepositories(ctx context.Context) ([]model.MonitoredRepository, error) {
	if _, err := s.ciEnabled(ctx); err != nil {
		if errors.Is(err, ErrCIDisabled) {
			return []model.MonitoredRepository{}, nil
		}
		return nil, err
	}
	return s.store.ListRepositories(ctx)
}

func (s *Service) CreateRepository(ctx context.Context, r *model.MonitoredRepository) (*model.MonitoredRepository, error) {
	if _, err := s.ciEnabled(ctx); err != nil {
		return nil, err
	}
	return s.store.CreateRepository(ctx, r)
}

func (s *Service) UpdateRepository(ctx context.Context, id string, p store.RepositoryPatch) (*model.MonitoredRepository, error) {
	if _, err := s.ciEnabled(ctx); err != nil {
		return nil, err
	}
	return s.store.UpdateRepository(ctx, id, p)
}

func (s *Service) DeleteRepository(ctx context.Context, id string) error {
	if _, err := s.ciEnabled(ctx); err != nil {
		return err
	}
	removed, err := s.store.DeleteRepository(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return store.ErrNotFound
	}
	return nil
}
