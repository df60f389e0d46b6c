package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/rebuild"
	"github.com/apprelay/apprelay/internal/settings"
	"github.com/apprelay/apprelay/internal/store"
)

// UploadInput is a manual build upload. File is the artifact body.
type UploadInput struct {
	AppName      string            `json:"appName" validate:"required"`
	VersionName  string            `json:"versionName" validate:"required"`
	VersionCode  string            `json:"versionCode" validate:"required"`
	Platform     model.Platform    `json:"platform" validate:"required,platform"`
	Channel      model.Channel     `json:"channel" validate:"required,channel"`
	Changelog    string            `json:"changelog" validate:"required"`
	BuildStatus  model.BuildStatus `json:"buildStatus" validate:"buildstatus"`
	CommitHash   string            `json:"commitHash"`
	AllowedUDIDs []string          `json:"allowedUDIDs" validate:"dive,required"`

	File        io.Reader `json:"buildFile" validate:"required"`
	FileName    string    `json:"-"`
	ContentType string    `json:"-"`
	Size        int64     `json:"size" validate:"gte=0"`
}

// QRCodeURL is the scan target recorded on every build.
func QRCodeURL(apiBaseURL, id string) string {
	return strings.TrimSuffix(apiBaseURL, "/") + "/builds/" + id + "/qr"
}

// FormatSize renders a byte count the way build records display it.
func FormatSize(n int64) string {
	return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
}

func (s *Service) GetBuild(ctx context.Context, id string) (*model.Build, error) {
	return s.store.GetBuild(ctx, id)
}

func (s *Service) ListBuilds(ctx context.Context, f store.BuildFilter) ([]model.Build, error) {
	if f.Platform != "" && !f.Platform.Valid() {
		return nil, invalid("platform", "must be iOS or Android")
	}
	if f.Channel != "" && !f.Channel.Valid() {
		return nil, invalid("channel", "must be Beta, Staging or Production")
	}
	return s.store.ListBuilds(ctx, f)
}

// CreateBuild stores the artifact, records the build and schedules a
// retention pass for its group. Oversized uploads are rejected before
// anything is written.
func (s *Service) CreateBuild(ctx context.Context, in UploadInput) (*model.Build, error) {
	in.AppName = strings.TrimSpace(in.AppName)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if in.Size > cfg.MaxUploadBytes() {
		return nil, fmt.Errorf("%w: %d bytes, limit %d MB", ErrTooLarge, in.Size, cfg.MaxUploadSizeMB)
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	obj, err := s.files.Upload(ctx, cfg, in.File, in.Size, in.FileName, contentType)
	if err != nil {
		s.logger.Error("store artifact", "app", in.AppName, "file", in.FileName, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var udids []string
	if in.Platform == model.PlatformIOS {
		udids = in.AllowedUDIDs
	}
	id := uuid.NewString()
	b := &model.Build{
		ID:           id,
		AppName:      in.AppName,
		VersionName:  in.VersionName,
		VersionCode:  in.VersionCode,
		Platform:     in.Platform,
		Channel:      in.Channel,
		Changelog:    in.Changelog,
		BuildStatus:  in.BuildStatus,
		CommitHash:   in.CommitHash,
		DownloadURL:  obj.URL,
		QRCodeURL:    QRCodeURL(cfg.APIBaseURL, id),
		Size:         FormatSize(obj.Size),
		FileName:     obj.Name,
		FileType:     contentType,
		Source:       model.SourceManual,
		AllowedUDIDs: udids,
	}
	created, err := s.store.CreateBuild(ctx, b)
	if err != nil {
		s.files.Delete(context.WithoutCancel(ctx), cfg, obj.Name)
		return nil, fmt.Errorf("record build: %w", err)
	}
	s.logger.Info("build uploaded", "build", created.ID, "group", created.Group().String(), "size", created.Size)

	s.retention.Trigger(created.Group())
	s.notifyNewBuild(cfg, created)
	return created, nil
}

// DeleteBuild removes a build, its feedback and, unless a rebuild still
// references it, its artifact.
func (s *Service) DeleteBuild(ctx context.Context, id string) error {
	b, err := s.store.GetBuild(ctx, id)
	if err != nil {
		return err
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	removed, err := s.store.DeleteBuild(ctx, id)
	if err != nil {
		return fmt.Errorf("delete build %s: %w", id, err)
	}
	if !removed {
		return store.ErrNotFound
	}
	s.deleteArtifact(ctx, cfg, b)
	s.logger.Info("build deleted", "build", id, "group", b.Group().String())
	return nil
}

// deleteArtifact removes b's file once no remaining build references it.
// It runs after the record is gone.
func (s *Service) deleteArtifact(ctx context.Context, cfg settings.Settings, b *model.Build) {
	if b.FileName == "" {
		return
	}
	refs, err := s.store.CountFileReferences(ctx, b.FileName)
	if err != nil {
		s.logger.Warn("count file references", "build", b.ID, "error", err)
		return
	}
	if refs == 0 {
		s.files.Delete(ctx, cfg, b.FileName)
	}
}

// RecordDownload increments the build's download counter.
func (s *Service) RecordDownload(ctx context.Context, id string) (*model.Build, error) {
	return s.store.IncrementDownloadCount(ctx, id)
}

// Rebuild records a forced rebuild of id that reuses its artifact.
func (s *Service) Rebuild(ctx context.Context, id, username string) (*model.Build, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalid("triggeredByUsername", "is required")
	}
	orig, err := s.store.GetBuild(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	nb := rebuild.Derive(orig, username, store.Now())
	nb.ID = uuid.NewString()
	nb.QRCodeURL = QRCodeURL(cfg.APIBaseURL, nb.ID)
	created, err := s.store.CreateBuild(ctx, &nb)
	if err != nil {
		return nil, fmt.Errorf("record rebuild of %s: %w", id, err)
	}
	s.logger.Info("build rebuilt", "build", created.ID, "original", id, "by", username)

	s.retention.Trigger(created.Group())
	s.notifyNewBuild(cfg, created)
	return created, nil
}
