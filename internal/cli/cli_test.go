package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apprelay/apprelay/internal/model"
)

func writeArtifact(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func TestReportBuild(t *testing.T) {
	artifact := []byte("apk bytes")
	var got struct {
		fields      map[string]string
		fileName    string
		contentType string
		body        []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/builds" {
			t.Errorf("request: got %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		got.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got.fields[k] = v[0]
		}
		f, h, err := r.FormFile("buildFile")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		got.fileName = h.Filename
		got.contentType = h.Header.Get("Content-Type")
		got.body, _ = io.ReadAll(f)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"build": model.Build{ID: "b1", AppName: got.fields["appName"]}})
	}))
	defer srv.Close()

	b, err := ReportBuild(context.Background(), srv.Client(), BuildReport{
		Server:       srv.URL + "/",
		File:         writeArtifact(t, "acme.apk", artifact),
		AppName:      "Acme",
		VersionName:  "1.0.0",
		VersionCode:  "100",
		Platform:     "iOS",
		Channel:      "Beta",
		Changelog:    "notes",
		AllowedUDIDs: []string{"u1", "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, "Acme", b.AppName)

	assert.Equal(t, "acme.apk", got.fileName)
	assert.Equal(t, "application/vnd.android.package-archive", got.contentType)
	assert.Equal(t, artifact, got.body)
	assert.Equal(t, `["u1","u2"]`, got.fields["allowedUDIDs"])
	assert.Equal(t, "iOS", got.fields["platform"])
	_, sent := got.fields["commitHash"]
	assert.False(t, sent)
}

func TestReportBuildServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = io.WriteString(w, `{"error":{"code":"PAYLOAD_TOO_LARGE","message":"too big"}}`)
	}))
	defer srv.Close()

	_, err := ReportBuild(context.Background(), srv.Client(), BuildReport{
		Server: srv.URL,
		File:   writeArtifact(t, "big.ipa", []byte("x")),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYLOAD_TOO_LARGE")
}

func TestReportBuildMissingFile(t *testing.T) {
	_, err := ReportBuild(context.Background(), http.DefaultClient, BuildReport{
		Server: "http://127.0.0.1:1",
		File:   filepath.Join(t.TempDir(), "nope.apk"),
	})
	require.Error(t, err)
}

func TestTriggerCI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["triggeredByUsername"] != "dev" {
			t.Errorf("triggeredByUsername: got %q, want dev", body["triggeredByUsername"])
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":  "ok",
			"newBuild": model.Build{ID: "ci1", Source: model.SourceCI},
		})
	}))
	defer srv.Close()

	b, err := TriggerCI(context.Background(), srv.Client(), CITrigger{
		Server: srv.URL, ProjectName: "Acme", Branch: "main", TriggeredBy: "dev",
		Platform: "Android", Channel: "Beta",
	})
	require.NoError(t, err)
	assert.Equal(t, "ci1", b.ID)
	assert.Equal(t, model.SourceCI, b.Source)
}

func TestTriggerCIForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":"FORBIDDEN","message":"CI/CD integration is disabled in settings"}}`)
	}))
	defer srv.Close()

	_, err := TriggerCI(context.Background(), srv.Client(), CITrigger{Server: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
