// Package store defines the persistence contract shared by the SQLite and
// PostgreSQL backends.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/settings"
)

// BuildFilter narrows ListBuilds. Zero fields match everything.
type BuildFilter struct {
	Platform model.Platform
	Channel  model.Channel
}

// BuildPatch is a partial update of a stored build. Group key, id,
// uploadDate and downloadCount cannot be patched.
type BuildPatch struct {
	VersionName    *string
	VersionCode    *string
	Changelog      *string
	BuildStatus    *model.BuildStatus
	PipelineStatus *model.BuildStatus
	DownloadURL    *string
	Size           *string
	FileName       *string
	FileType       *string
}

type BuildRepository interface {
	CreateBuild(ctx context.Context, b *model.Build) (*model.Build, error)
	GetBuild(ctx context.Context, id string) (*model.Build, error)
	// ListBuilds returns builds newest first.
	ListBuilds(ctx context.Context, f BuildFilter) ([]model.Build, error)
	// ListGroup returns a group's builds newest first. An empty source
	// matches every source.
	ListGroup(ctx context.Context, g model.Group, source model.BuildSource) ([]model.Build, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	IncrementDownloadCount(ctx context.Context, id string) (*model.Build, error)
	// DeleteBuild reports whether a record was removed. Feedback rows go
	// with it; the artifact file does not.
	DeleteBuild(ctx context.Context, id string) (bool, error)
	UpdateBuildFields(ctx context.Context, id string, p BuildPatch) (*model.Build, error)
	// CountFileReferences counts builds whose stored file is fileName.
	// Rebuilds share their original's file.
	CountFileReferences(ctx context.Context, fileName string) (int, error)
}

type FeedbackRepository interface {
	// CreateFeedback returns ErrNotFound when the build does not exist.
	CreateFeedback(ctx context.Context, f *model.Feedback) (*model.Feedback, error)
	// ListFeedback returns a build's feedback newest first.
	ListFeedback(ctx context.Context, buildID string) ([]model.Feedback, error)
}

type RepositoryPatch struct {
	RepoURL            *string         `json:"repo_url,omitempty"`
	DefaultBranch      *string         `json:"default_branch,omitempty"`
	DefaultPlatform    *model.Platform `json:"default_platform,omitempty"`
	DefaultChannel     *model.Channel  `json:"default_channel,omitempty"`
	AutoTriggerEnabled *bool           `json:"auto_trigger_enabled,omitempty"`
}

type RepositoryRegistry interface {
	// ListRepositories returns repositories ordered by URL.
	ListRepositories(ctx context.Context) ([]model.MonitoredRepository, error)
	// CreateRepository returns ErrConflict for a duplicate URL.
	CreateRepository(ctx context.Context, r *model.MonitoredRepository) (*model.MonitoredRepository, error)
	UpdateRepository(ctx context.Context, id string, p RepositoryPatch) (*model.MonitoredRepository, error)
	DeleteRepository(ctx context.Context, id string) (bool, error)
}

// Store is implemented by each persistence backend.
type Store interface {
	BuildRepository
	FeedbackRepository
	RepositoryRegistry
	settings.Repository
	Ping(ctx context.Context) error
	Close() error
}

// Now returns the current time at the precision every backend stores.
func Now() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to UTC with millisecond precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// PrepareBuild validates b and fills server-assigned fields, returning the
// record a backend should insert.
func PrepareBuild(b *model.Build) (model.Build, error) {
	out := *b
	out.AppName = strings.TrimSpace(out.AppName)
	switch {
	case out.AppName == "":
		return out, invalid("appName", "is required")
	case out.VersionName == "":
		return out, invalid("versionName", "is required")
	case out.VersionCode == "":
		return out, invalid("versionCode", "is required")
	case out.Changelog == "":
		return out, invalid("changelog", "is required")
	case !out.Platform.Valid():
		return out, invalid("platform", "must be iOS or Android")
	case !out.Channel.Valid():
		return out, invalid("channel", "must be Beta, Staging or Production")
	}

	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.UploadDate.IsZero() {
		out.UploadDate = Now()
	} else {
		out.UploadDate = Normalize(out.UploadDate)
	}
	if out.BuildStatus == "" {
		out.BuildStatus = model.StatusSuccess
	}
	if !out.BuildStatus.Valid() {
		return out, invalid("buildStatus", "must be Success, Failed or In Progress")
	}
	if out.Source == "" {
		out.Source = model.SourceManual
	}
	if !out.Source.Valid() {
		return out, invalid("source", "is not a known build source")
	}
	if out.PipelineStatus != "" && !out.PipelineStatus.Valid() {
		return out, invalid("pipelineStatus", "must be Success, Failed or In Progress")
	}
	if out.DownloadCount < 0 {
		out.DownloadCount = 0
	}
	if len(out.AllowedUDIDs) == 0 {
		out.AllowedUDIDs = nil
	}
	return out, nil
}

// PrepareRepository validates r and fills server-assigned fields.
func PrepareRepository(r *model.MonitoredRepository) (model.MonitoredRepository, error) {
	out := *r
	out.RepoURL = strings.TrimSpace(out.RepoURL)
	out.DefaultBranch = strings.TrimSpace(out.DefaultBranch)
	if err := validateRepository(out); err != nil {
		return out, err
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	now := Now()
	out.CreatedAt = now
	out.UpdatedAt = now
	return out, nil
}

// ApplyRepositoryPatch returns r updated by p, validated.
func ApplyRepositoryPatch(r model.MonitoredRepository, p RepositoryPatch) (model.MonitoredRepository, error) {
	if p.RepoURL == nil && p.DefaultBranch == nil && p.DefaultPlatform == nil &&
		p.DefaultChannel == nil && p.AutoTriggerEnabled == nil {
		return r, invalid("", "no fields to update")
	}
	if p.RepoURL != nil {
		r.RepoURL = strings.TrimSpace(*p.RepoURL)
	}
	if p.DefaultBranch != nil {
		r.DefaultBranch = strings.TrimSpace(*p.DefaultBranch)
	}
	if p.DefaultPlatform != nil {
		r.DefaultPlatform = *p.DefaultPlatform
	}
	if p.DefaultChannel != nil {
		r.DefaultChannel = *p.DefaultChannel
	}
	if p.AutoTriggerEnabled != nil {
		r.AutoTriggerEnabled = *p.AutoTriggerEnabled
	}
	if err := validateRepository(r); err != nil {
		return r, err
	}
	r.UpdatedAt = Now()
	return r, nil
}

func validateRepository(r model.MonitoredRepository) error {
	switch {
	case r.RepoURL == "":
		return invalid("repo_url", "is required")
	case !strings.HasPrefix(r.RepoURL, "http://") && !strings.HasPrefix(r.RepoURL, "https://") && !strings.HasPrefix(r.RepoURL, "git@"):
		return invalid("repo_url", "must be an http(s) or git@ URL")
	case r.DefaultBranch == "":
		return invalid("default_branch", "is required")
	case !r.DefaultPlatform.Valid():
		return invalid("default_platform", "must be iOS or Android")
	case !r.DefaultChannel.Valid():
		return invalid("default_channel", "must be Beta, Staging or Production")
	}
	return nil
}

// ApplyBuildPatch returns b updated by p.
func ApplyBuildPatch(b model.Build, p BuildPatch) model.Build {
	if p.VersionName != nil {
		b.VersionName = *p.VersionName
	}
	if p.VersionCode != nil {
		b.VersionCode = *p.VersionCode
	}
	if p.Changelog != nil {
		b.Changelog = *p.Changelog
	}
	if p.BuildStatus != nil {
		b.BuildStatus = *p.BuildStatus
	}
	if p.PipelineStatus != nil {
		b.PipelineStatus = *p.PipelineStatus
	}
	if p.DownloadURL != nil {
		b.DownloadURL = *p.DownloadURL
	}
	if p.Size != nil {
		b.Size = *p.Size
	}
	if p.FileName != nil {
		b.FileName = *p.FileName
	}
	if p.FileType != nil {
		b.FileType = *p.FileType
	}
	return b
}
