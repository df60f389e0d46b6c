package settings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apprelay/apprelay/internal/model"
)

func TestMergeWithDefaultsBackfillsMissingKeys(t *testing.T) {
	// A row written before most fields existed.
	s, err := MergeWithDefaults([]byte(`{"maxBuildsPerGroup":3,"deletePolicy":"All"}`))
	require.NoError(t, err)

	assert.Equal(t, 3, s.MaxBuildsPerGroup)
	assert.Equal(t, DeleteAll, s.DeletePolicy)
	assert.True(t, s.EnableAutoClean)
	assert.Equal(t, 200, s.MaxUploadSizeMB)
	assert.Equal(t, "http://localhost:3000", s.APIBaseURL)
	assert.Equal(t, model.ChannelBeta, s.DefaultChannel)
	assert.Equal(t, ThemeDark, s.UITheme)
}

func TestMergeWithDefaultsKeepsExplicitFalse(t *testing.T) {
	s, err := MergeWithDefaults([]byte(`{"enableAutoClean":false,"useObjectStorage":false}`))
	require.NoError(t, err)
	assert.False(t, s.EnableAutoClean)
	assert.False(t, s.UseObjectStorage)
	assert.True(t, s.FeedbackEnabled)
}

func TestMergeWithDefaultsRepairsBadValues(t *testing.T) {
	s, err := MergeWithDefaults([]byte(`{"maxBuildsPerGroup":0,"deletePolicy":"sometimes","uiTheme":"neon","defaultChannel":"Nightly"}`))
	require.NoError(t, err)
	assert.Equal(t, 10, s.MaxBuildsPerGroup)
	assert.Equal(t, DeleteCIOnly, s.DeletePolicy)
	assert.Equal(t, ThemeDark, s.UITheme)
	assert.Equal(t, model.ChannelBeta, s.DefaultChannel)
}

func TestMergeValues(t *testing.T) {
	s, err := MergeValues(map[string]json.RawMessage{"notifyOnNewBuild": json.RawMessage(`true`)})
	require.NoError(t, err)
	assert.True(t, s.NotifyOnNewBuild)
	assert.Equal(t, Defaults().MaxBuildsPerGroup, s.MaxBuildsPerGroup)

	empty, err := MergeValues(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), empty)
}

func TestPatchNormalize(t *testing.T) {
	policy := DeletePolicy("whatever")
	mode := QRCodeMode("Poster")
	base := " http://example.test/ "
	p, err := Patch{DeletePolicy: &policy, QRCodeMode: &mode, APIBaseURL: &base}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DeleteCIOnly, *p.DeletePolicy)
	assert.Equal(t, QRDownloadLink, *p.QRCodeMode)
	assert.Equal(t, "http://example.test", *p.APIBaseURL)

	zero := 0
	_, err = Patch{MaxBuildsPerGroup: &zero}.Normalize()
	assert.ErrorIs(t, err, ErrInvalid)

	theme := Theme("neon")
	_, err = Patch{UITheme: &theme}.Normalize()
	assert.ErrorIs(t, err, ErrInvalid)

	ch := model.Channel("Nightly")
	_, err = Patch{DefaultChannel: &ch}.Normalize()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPatchValuesOnlySetFields(t *testing.T) {
	off := false
	n := 4
	values, err := Patch{EnableAutoClean: &off, MaxBuildsPerGroup: &n}.Values()
	require.NoError(t, err)
	assert.Len(t, values, 2)
	assert.JSONEq(t, `false`, string(values["enableAutoClean"]))
	assert.JSONEq(t, `4`, string(values["maxBuildsPerGroup"]))
	assert.True(t, Patch{}.Empty())
}

type memRepo struct {
	values map[string]json.RawMessage
	loads  int
	err    error
}

func (m *memRepo) LoadSettings(context.Context) (Settings, error) {
	m.loads++
	if m.err != nil {
		return Settings{}, m.err
	}
	return MergeValues(m.values)
}

func (m *memRepo) SaveSettings(_ context.Context, values map[string]json.RawMessage) (Settings, error) {
	if m.values == nil {
		m.values = map[string]json.RawMessage{}
	}
	for k, v := range values {
		m.values[k] = v
	}
	return MergeValues(m.values)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceCachesUntilUpdate(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	svc := NewService(repo, discardLogger())

	_, err := svc.Get(ctx)
	require.NoError(t, err)
	_, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.loads)

	n := 2
	updated, err := svc.Update(ctx, Patch{MaxBuildsPerGroup: &n})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MaxBuildsPerGroup)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxBuildsPerGroup)
	assert.Equal(t, 2, repo.loads)
}

// blockingRepo holds SaveSettings until release is closed.
type blockingRepo struct {
	memRepo
	mu      sync.Mutex
	saving  chan struct{}
	release chan struct{}
}

func (b *blockingRepo) LoadSettings(ctx context.Context) (Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.memRepo.LoadSettings(ctx)
}

func (b *blockingRepo) SaveSettings(ctx context.Context, values map[string]json.RawMessage) (Settings, error) {
	close(b.saving)
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.memRepo.SaveSettings(ctx, values)
}

func TestServiceGetDuringUpdateDoesNotCacheOldValue(t *testing.T) {
	ctx := context.Background()
	repo := &blockingRepo{saving: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(repo, discardLogger())

	done := make(chan error, 1)
	go func() {
		n := 2
		_, err := svc.Update(ctx, Patch{MaxBuildsPerGroup: &n})
		done <- err
	}()

	<-repo.saving
	during, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, during.MaxBuildsPerGroup)

	close(repo.release)
	require.NoError(t, <-done)

	after, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, after.MaxBuildsPerGroup)
}

func TestServiceUnavailable(t *testing.T) {
	svc := NewService(&memRepo{err: errors.New("disk on fire")}, discardLogger())
	_, err := svc.Get(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestServiceRejectsEmptyPatch(t *testing.T) {
	svc := NewService(&memRepo{}, discardLogger())
	_, err := svc.Update(context.Background(), Patch{})
	assert.ErrorIs(t, err, ErrInvalid)
}
