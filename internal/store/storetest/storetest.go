// Package storetest is a behavioural suite every store.Store backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateValidates", testCreateValidates},
		{"ListOrderAndFilter", testListOrderAndFilter},
		{"ListGroup", testListGroup},
		{"ConcurrentDownloads", testConcurrentDownloads},
		{"DeleteIsIdempotent", testDeleteIsIdempotent},
		{"UpdateBuildFields", testUpdateBuildFields},
		{"Feedback", testFeedback},
		{"Repositories", testRepositories},
		{"Settings", testSettings},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

// NewBuild returns a valid manual build in the given group.
func NewBuild(app string, p model.Platform, c model.Channel, uploaded time.Time) *model.Build {
	return &model.Build{
		AppName:     app,
		VersionName: "1.0.0",
		VersionCode: "1",
		Platform:    p,
		Channel:     c,
		Changelog:   "initial",
		UploadDate:  uploaded,
		FileName:    "a.apk",
		FileType:    "application/vnd.android.package-archive",
		Size:        "1.0 MB",
		DownloadURL: "http://localhost:3000/api/local-downloads/a.apk",
	}
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	in := NewBuild("Acme", model.PlatformIOS, model.ChannelBeta, time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC))
	in.AllowedUDIDs = []string{"udid-b", "udid-a"}
	in.CommitHash = "abc123"

	created, err := s.CreateBuild(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusSuccess, created.BuildStatus)
	assert.Equal(t, model.SourceManual, created.Source)

	got, err := s.GetBuild(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, []string{"udid-b", "udid-a"}, got.AllowedUDIDs)
	assert.Equal(t, 123*time.Millisecond, time.Duration(got.UploadDate.Nanosecond()))

	// JSON must not depend on the backend.
	want, _ := json.Marshal(created)
	have, _ := json.Marshal(got)
	assert.JSONEq(t, string(want), string(have))

	_, err = s.GetBuild(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCreateValidates(t *testing.T, s store.Store) {
	b := NewBuild("Acme", model.PlatformIOS, model.ChannelBeta, time.Time{})
	b.Changelog = ""
	_, err := s.CreateBuild(context.Background(), b)
	var ve *store.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "changelog", ve.Field)

	b = NewBuild("Acme", "Windows", model.ChannelBeta, time.Time{})
	_, err = s.CreateBuild(context.Background(), b)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "platform", ve.Field)
}

func testListOrderAndFilter(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, p := range []model.Platform{model.PlatformIOS, model.PlatformAndroid, model.PlatformIOS} {
		b, err := s.CreateBuild(ctx, NewBuild("Acme", p, model.ChannelBeta, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}
	_, err := s.CreateBuild(ctx, NewBuild("Acme", model.PlatformIOS, model.ChannelProduction, base))
	require.NoError(t, err)

	all, err := s.ListBuilds(ctx, store.BuildFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, ids[2], all[0].ID)

	ios, err := s.ListBuilds(ctx, store.BuildFilter{Platform: model.PlatformIOS, Channel: model.ChannelBeta})
	require.NoError(t, err)
	require.Len(t, ios, 2)
	assert.Equal(t, ids[2], ios[0].ID)
	assert.Equal(t, ids[0], ios[1].ID)
}

func testListGroup(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	manual := NewBuild("Acme", model.PlatformAndroid, model.ChannelBeta, base)
	_, err := s.CreateBuild(ctx, manual)
	require.NoError(t, err)

	ci := NewBuild("Acme", model.PlatformAndroid, model.ChannelBeta, base.Add(time.Minute))
	ci.Source = model.SourceCI
	ci.CIBuildID = "ci-1234abcd"
	ci.PipelineStatus = model.StatusInProgress
	_, err = s.CreateBuild(ctx, ci)
	require.NoError(t, err)

	_, err = s.CreateBuild(ctx, NewBuild("Other", model.PlatformAndroid, model.ChannelBeta, base))
	require.NoError(t, err)

	g := model.Group{AppName: "Acme", Platform: model.PlatformAndroid, Channel: model.ChannelBeta}
	all, err := s.ListGroup(ctx, g, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyCI, err := s.ListGroup(ctx, g, model.SourceCI)
	require.NoError(t, err)
	require.Len(t, onlyCI, 1)
	assert.Equal(t, "ci-1234abcd", onlyCI[0].CIBuildID)

	groups, err := s.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func testConcurrentDownloads(t *testing.T, s store.Store) {
	ctx := context.Background()
	b, err := s.CreateBuild(ctx, NewBuild("Acme", model.PlatformIOS, model.ChannelBeta, time.Time{}))
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementDownloadCount(ctx, b.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetBuild(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.DownloadCount)

	_, err = s.IncrementDownloadCount(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	b, err := s.CreateBuild(ctx, NewBuild("Acme", model.PlatformIOS, model.ChannelBeta, time.Time{}))
	require.NoError(t, err)
	_, err = s.CreateFeedback(ctx, &model.Feedback{BuildID: b.ID, User: "qa", Comment: "crashes"})
	require.NoError(t, err)

	n, err := s.CountFileReferences(ctx, b.FileName)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := s.DeleteBuild(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	n, err = s.CountFileReferences(ctx, b.FileName)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	removed, err = s.DeleteBuild(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	fb, err := s.ListFeedback(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, fb)
}

func testUpdateBuildFields(t *testing.T, s store.Store) {
	ctx := context.Background()
	in := NewBuild("Acme", model.PlatformAndroid, model.ChannelStaging, time.Time{})
	in.Source = model.SourceCI
	in.PipelineStatus = model.StatusInProgress
	b, err := s.CreateBuild(ctx, in)
	require.NoError(t, err)

	status := model.StatusSuccess
	version := "1.0.0-main-ci-12"
	updated, err := s.UpdateBuildFields(ctx, b.ID, store.BuildPatch{PipelineStatus: &status, VersionName: &version})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, updated.PipelineStatus)
	assert.Equal(t, version, updated.VersionName)
	assert.Equal(t, b.Changelog, updated.Changelog)

	got, err := s.GetBuild(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = s.UpdateBuildFields(ctx, "missing", store.BuildPatch{PipelineStatus: &status})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFeedback(t *testing.T, s store.Store) {
	ctx := context.Background()
	b, err := s.CreateBuild(ctx, NewBuild("Acme", model.PlatformIOS, model.ChannelBeta, time.Time{}))
	require.NoError(t, err)

	first, err := s.CreateFeedback(ctx, &model.Feedback{BuildID: b.ID, User: "ann", Comment: "first"})
	require.NoError(t, err)
	second, err := s.CreateFeedback(ctx, &model.Feedback{BuildID: b.ID, User: "bob", Comment: "second"})
	require.NoError(t, err)

	list, err := s.ListFeedback(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = s.CreateFeedback(ctx, &model.Feedback{BuildID: "missing", User: "x", Comment: "y"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRepositories(t *testing.T, s store.Store) {
	ctx := context.Background()
	newRepo := func(url string) *model.MonitoredRepository {
		return &model.MonitoredRepository{
			RepoURL:            url,
			DefaultBranch:      "main",
			DefaultPlatform:    model.PlatformAndroid,
			DefaultChannel:     model.ChannelBeta,
			AutoTriggerEnabled: true,
		}
	}

	b, err := s.CreateRepository(ctx, newRepo("https://git.example.com/b.git"))
	require.NoError(t, err)
	_, err = s.CreateRepository(ctx, newRepo("https://git.example.com/a.git"))
	require.NoError(t, err)

	_, err = s.CreateRepository(ctx, newRepo("https://git.example.com/a.git"))
	assert.ErrorIs(t, err, store.ErrConflict)

	list, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "https://git.example.com/a.git", list[0].RepoURL)
	assert.True(t, list[0].AutoTriggerEnabled)

	off := false
	updated, err := s.UpdateRepository(ctx, b.ID, store.RepositoryPatch{AutoTriggerEnabled: &off})
	require.NoError(t, err)
	assert.False(t, updated.AutoTriggerEnabled)

	dup := "https://git.example.com/a.git"
	_, err = s.UpdateRepository(ctx, b.ID, store.RepositoryPatch{RepoURL: &dup})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.UpdateRepository(ctx, b.ID, store.RepositoryPatch{})
	var ve *store.ValidationError
	assert.True(t, errors.As(err, &ve))

	removed, err := s.DeleteRepository(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.DeleteRepository(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func testSettings(t *testing.T, s store.Store) {
	ctx := context.Background()
	initial, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, initial.MaxBuildsPerGroup)
	assert.True(t, initial.EnableAutoClean)

	saved, err := s.SaveSettings(ctx, map[string]json.RawMessage{"maxBuildsPerGroup": json.RawMessage(`3`)})
	require.NoError(t, err)
	assert.Equal(t, 3, saved.MaxBuildsPerGroup)
	require.NotNil(t, saved.UpdatedAt)

	// A second writer touching a different field keeps the first write.
	saved, err = s.SaveSettings(ctx, map[string]json.RawMessage{"enableAutoClean": json.RawMessage(`false`)})
	require.NoError(t, err)
	assert.Equal(t, 3, saved.MaxBuildsPerGroup)
	assert.False(t, saved.EnableAutoClean)

	loaded, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.MaxBuildsPerGroup)
	assert.False(t, loaded.EnableAutoClean)
	assert.Equal(t, "http://localhost:3000", loaded.APIBaseURL)
}
