package rebuild

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/apprelay/apprelay/internal/model"
)

func TestNextVersion(t *testing.T) {
	tests := []struct {
		in, suffix, want string
	}{
		{"1.2.0", "rbld", "1.2.0-rbld-1"},
		{"1.2.0-rbld-1", "rbld", "1.2.0-rbld-2"},
		{"1.2.0-rbld-9", "rbld", "1.2.0-rbld-10"},
		{"1.2.0-rbld-x", "rbld", "1.2.0-rbld-x-rbld-1"},
		{"42", "RBLD", "42-RBLD-1"},
		{"42-RBLD-3", "RBLD", "42-RBLD-4"},
		{"42-rbld-3", "RBLD", "42-rbld-3-RBLD-1"},
		{"", "rbld", "0-rbld-1"},
		{"1.0-rbld-1-beta", "rbld", "1.0-rbld-1-beta-rbld-1"},
	}
	for _, tt := range tests {
		if got := NextVersion(tt.in, tt.suffix); got != tt.want {
			t.Errorf("NextVersion(%q, %q): got %q, want %q", tt.in, tt.suffix, got, tt.want)
		}
	}
}

func TestDerive(t *testing.T) {
	orig := &model.Build{
		ID:             "orig",
		AppName:        "Acme",
		VersionName:    "2.0.0",
		VersionCode:    "200-RBLD-1",
		Platform:       model.PlatformIOS,
		Channel:        model.ChannelStaging,
		Changelog:      "Fixed login",
		BuildStatus:    model.StatusFailed,
		DownloadURL:    "http://localhost:3000/api/local-downloads/x.ipa",
		FileName:       "x.ipa",
		FileType:       "application/octet-stream",
		Size:           "12.3 MB",
		DownloadCount:  7,
		Source:         model.SourceCI,
		CIBuildID:      "ci-abcdef12",
		PipelineStatus: model.StatusFailed,
		CILogsURL:      "http://localhost:3000/ci/logs/ci-abcdef12",
		AllowedUDIDs:   []string{"u1"},
	}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	got := Derive(orig, "alice", now)

	assert.Empty(t, got.ID)
	assert.Equal(t, "2.0.0-rbld-1", got.VersionName)
	assert.Equal(t, "200-RBLD-2", got.VersionCode)
	assert.Equal(t, "Forced rebuild of v2.0.0. Triggered by alice.\n---\nOriginal Changelog:\nFixed login", got.Changelog)
	assert.Equal(t, "Fixed login", got.PreviousChangelog)
	assert.Equal(t, now, got.UploadDate)
	assert.Equal(t, model.StatusSuccess, got.BuildStatus)
	assert.Equal(t, model.SourceManual, got.Source)
	assert.Equal(t, "alice", got.TriggeredBy)
	assert.Zero(t, got.DownloadCount)
	assert.Empty(t, got.CIBuildID)
	assert.Empty(t, got.PipelineStatus)
	assert.Empty(t, got.CILogsURL)
	assert.Equal(t, orig.DownloadURL, got.DownloadURL)
	assert.Equal(t, orig.FileName, got.FileName)
	assert.Equal(t, orig.Size, got.Size)
	assert.Equal(t, orig.Group(), got.Group())
	assert.Equal(t, []string{"u1"}, got.AllowedUDIDs)
}
