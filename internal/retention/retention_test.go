package retention

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apprelay/apprelay/internal/db/sqlite"
	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/settings"
)

type fakeFiles struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeFiles) Delete(_ context.Context, _ settings.Settings, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
}

type fixture struct {
	db     *sqlite.DB
	svc    *settings.Service
	files  *fakeFiles
	engine *Engine
	group  model.Group
	base   time.Time
	n      int
}

func newFixture(t *testing.T, values map[string]any) *fixture {
	t.Helper()
	d, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	raw := map[string]json.RawMessage{}
	for k, v := range values {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		raw[k] = data
	}
	if len(raw) > 0 {
		_, err = d.SaveSettings(context.Background(), raw)
		require.NoError(t, err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := settings.NewService(d, logger)
	files := &fakeFiles{}
	return &fixture{
		db:     d,
		svc:    svc,
		files:  files,
		engine: NewEngine(d, svc, files, logger),
		group:  model.Group{AppName: "Acme", Platform: model.PlatformAndroid, Channel: model.ChannelBeta},
		base:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) add(t *testing.T, source model.BuildSource) *model.Build {
	t.Helper()
	f.n++
	b, err := f.db.CreateBuild(context.Background(), &model.Build{
		AppName:     f.group.AppName,
		VersionName: "1.0." + string(rune('0'+f.n)),
		VersionCode: "1",
		Platform:    f.group.Platform,
		Channel:     f.group.Channel,
		Changelog:   "changes",
		Source:      source,
		FileName:    filepath.Base(t.Name()) + string(rune('a'+f.n)) + ".apk",
		UploadDate:  f.base.Add(time.Duration(f.n) * time.Minute),
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) remaining(t *testing.T) []string {
	t.Helper()
	builds, err := f.db.ListGroup(context.Background(), f.group, "")
	require.NoError(t, err)
	ids := make([]string, 0, len(builds))
	for _, b := range builds {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestPruneKeepsNewestBuilds(t *testing.T) {
	f := newFixture(t, map[string]any{"maxBuildsPerGroup": 2, "deletePolicy": "All"})
	a := f.add(t, model.SourceManual)
	b := f.add(t, model.SourceManual)
	c := f.add(t, model.SourceManual)

	res, err := f.engine.Prune(context.Background(), f.group)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, []string{a.ID}, res.Deleted)
	assert.Equal(t, []string{c.ID, b.ID}, f.remaining(t))
	assert.Equal(t, []string{a.FileName}, f.files.deleted)
}

func TestPruneCIOnlySparesManualBuilds(t *testing.T) {
	f := newFixture(t, map[string]any{"maxBuildsPerGroup": 1})
	m1 := f.add(t, model.SourceManual)
	ci1 := f.add(t, model.SourceCI)
	m2 := f.add(t, model.SourceManual)
	ci2 := f.add(t, model.SourceCI)
	m3 := f.add(t, model.SourceManual)

	res, err := f.engine.Prune(context.Background(), f.group)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, []string{ci1.ID}, res.Deleted)
	assert.ElementsMatch(t, []string{m1.ID, m2.ID, m3.ID, ci2.ID}, f.remaining(t))
}

func TestPruneDisabled(t *testing.T) {
	f := newFixture(t, map[string]any{"maxBuildsPerGroup": 1, "deletePolicy": "All", "enableAutoClean": false})
	f.add(t, model.SourceManual)
	f.add(t, model.SourceManual)

	res, err := f.engine.Prune(context.Background(), f.group)
	require.NoError(t, err)
	assert.True(t, res.Disabled)
	assert.Len(t, f.remaining(t), 2)
}

func TestPruneUnderLimitIsNoop(t *testing.T) {
	f := newFixture(t, map[string]any{"deletePolicy": "All"})
	f.add(t, model.SourceManual)

	res, err := f.engine.Prune(context.Background(), f.group)
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Empty(t, f.files.deleted)
}

func TestPruneKeepsSharedArtifact(t *testing.T) {
	f := newFixture(t, map[string]any{"maxBuildsPerGroup": 1, "deletePolicy": "All"})
	orig := f.add(t, model.SourceManual)

	// A rebuild points at the original's file.
	rebuilt := *orig
	rebuilt.ID = ""
	rebuilt.UploadDate = f.base.Add(time.Hour)
	_, err := f.db.CreateBuild(context.Background(), &rebuilt)
	require.NoError(t, err)

	res, err := f.engine.Prune(context.Background(), f.group)
	require.NoError(t, err)
	assert.Equal(t, []string{orig.ID}, res.Deleted)
	assert.Empty(t, f.files.deleted)
}

// lockstepRepo makes two callers of CountFileReferences wait for each other.
type lockstepRepo struct {
	*sqlite.DB
	arrived sync.WaitGroup
}

func (r *lockstepRepo) CountFileReferences(ctx context.Context, fileName string) (int, error) {
	r.arrived.Done()
	r.arrived.Wait()
	return r.DB.CountFileReferences(ctx, fileName)
}

func TestOverlappingDeletesOfSharedArtifactRemoveFile(t *testing.T) {
	f := newFixture(t, map[string]any{"maxBuildsPerGroup": 1, "deletePolicy": "All"})
	orig := f.add(t, model.SourceManual)
	rebuilt := *orig
	rebuilt.ID = ""
	rebuilt.UploadDate = f.base.Add(time.Hour)
	copyOf, err := f.db.CreateBuild(context.Background(), &rebuilt)
	require.NoError(t, err)

	repo := &lockstepRepo{DB: f.db}
	repo.arrived.Add(2)
	engine := NewEngine(repo, f.svc, f.files, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cfg, err := f.svc.Get(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, b := range []model.Build{*orig, *copyOf} {
		wg.Add(1)
		go func(b model.Build) {
			defer wg.Done()
			removed, err := engine.deleteBuild(context.Background(), cfg, b)
			assert.NoError(t, err)
			assert.True(t, removed)
		}(b)
	}
	wg.Wait()

	assert.Empty(t, f.remaining(t))
	assert.Contains(t, f.files.deleted, orig.FileName)
}

func TestConcurrentTriggersConverge(t *testing.T) {
	f := newFixture(t, map[string]any{"maxBuildsPerGroup": 2, "deletePolicy": "All"})
	for i := 0; i < 6; i++ {
		f.add(t, model.SourceManual)
	}
	for i := 0; i < 4; i++ {
		f.engine.Trigger(f.group)
	}
	f.engine.Wait()
	assert.Len(t, f.remaining(t), 2)
}

func TestSweepOnce(t *testing.T) {
	f := newFixture(t, map[string]any{"maxBuildsPerGroup": 1, "deletePolicy": "All"})
	f.add(t, model.SourceManual)
	f.add(t, model.SourceManual)

	other := f.group
	other.Channel = model.ChannelProduction
	f.group = other
	f.add(t, model.SourceManual)
	f.add(t, model.SourceManual)
	f.add(t, model.SourceManual)

	assert.Equal(t, 3, f.engine.SweepOnce(context.Background()))
}
