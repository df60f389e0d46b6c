package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apprelay/apprelay/internal/settings"
)

func TestValidateStoredName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"3f1c.apk", true},
		{"build.ipa", true},
		{"", false},
		{"../etc/passwd", false},
		{"..", false},
		{"a..b.apk", false},
		{"dir/file.apk", false},
		{`dir\file.apk`, false},
	}
	for _, tt := range tests {
		err := ValidateStoredName(tt.name)
		if tt.ok {
			assert.NoError(t, err, tt.name)
		} else {
			assert.ErrorIs(t, err, ErrInvalidName, tt.name)
		}
	}
}

func TestStoredName(t *testing.T) {
	assert.True(t, strings.HasSuffix(StoredName("MyApp.IPA"), ".ipa"))
	assert.True(t, strings.HasSuffix(StoredName("noext"), ".bin"))
	assert.NotEqual(t, StoredName("a.apk"), StoredName("a.apk"))
	assert.NoError(t, ValidateStoredName(StoredName("../../x.apk")))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/vnd.android.package-archive", ContentType("x.APK"))
	assert.Equal(t, "application/octet-stream", ContentType("x.ipa"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localSettings(t *testing.T) settings.Settings {
	cfg := settings.Defaults()
	cfg.UseObjectStorage = false
	cfg.LocalBuildPath = filepath.Join(t.TempDir(), "builds")
	cfg.APIBaseURL = "http://files.test/"
	return cfg
}

func TestLocalUploadAndDelete(t *testing.T) {
	ctx := context.Background()
	cfg := localSettings(t)
	s := New(nil, testLogger())

	obj, err := s.Upload(ctx, cfg, bytes.NewReader([]byte("binary")), 6, "app.apk", "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, int64(6), obj.Size)
	assert.Equal(t, "http://files.test/api/local-downloads/"+obj.Name, obj.URL)

	f, info, err := s.Local().Open(cfg.LocalBuildPath, obj.Name)
	require.NoError(t, err)
	_ = f.Close()
	assert.Equal(t, int64(6), info.Size())

	s.Delete(ctx, cfg, obj.Name)
	_, err = os.Stat(filepath.Join(cfg.LocalBuildPath, obj.Name))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// Deleting again is silent.
	s.Delete(ctx, cfg, obj.Name)
}

func TestLocalOpenRejectsTraversal(t *testing.T) {
	cfg := localSettings(t)
	_, _, err := New(nil, testLogger()).Local().Open(cfg.LocalBuildPath, "../secret")
	assert.ErrorIs(t, err, ErrInvalidName)
}

type fakeObjects struct {
	put     map[string][]byte
	deleted []string
}

func (f *fakeObjects) PutObject(_ context.Context, name string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if f.put == nil {
		f.put = map[string][]byte{}
	}
	f.put[name] = data
	return nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeObjects) ObjectURL(name string) string { return "https://bucket.test/" + name }

func TestObjectUpload(t *testing.T) {
	ctx := context.Background()
	cfg := localSettings(t)
	cfg.UseObjectStorage = true
	objects := &fakeObjects{}
	s := New(objects, testLogger())

	obj, err := s.Upload(ctx, cfg, strings.NewReader("ipa"), 3, "App.ipa", "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.test/"+obj.Name, obj.URL)
	assert.Equal(t, []byte("ipa"), objects.put[obj.Name])

	s.Delete(ctx, cfg, obj.Name)
	assert.Equal(t, []string{obj.Name}, objects.deleted)
}

func TestObjectUploadNotConfigured(t *testing.T) {
	cfg := localSettings(t)
	cfg.UseObjectStorage = true
	_, err := New(nil, testLogger()).Upload(context.Background(), cfg, strings.NewReader("x"), 1, "a.ipa", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCheck(t *testing.T) {
	cfg := localSettings(t)
	assert.NoError(t, New(nil, testLogger()).Check(cfg))

	cfg.UseObjectStorage = true
	assert.ErrorIs(t, New(nil, testLogger()).Check(cfg), ErrNotConfigured)
	assert.NoError(t, New(&fakeObjects{}, testLogger()).Check(cfg))
}
