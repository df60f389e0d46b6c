// Package cli holds client-side commands that talk to a running server.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/storage"
)

// BuildReport describes a build file to upload.
type BuildReport struct {
	Server       string
	File         string
	AppName      string
	VersionName  string
	VersionCode  string
	Platform     string
	Channel      string
	Changelog    string
	CommitHash   string
	BuildStatus  string
	AllowedUDIDs []string
}

// ReportBuild uploads r.File to the server as a new build. The file is
// streamed, never held in memory.
func ReportBuild(ctx context.Context, client *http.Client, r BuildReport) (*model.Build, error) {
	f, err := os.Open(r.File)
	if err != nil {
		return nil, fmt.Errorf("open build file: %w", err)
	}
	defer f.Close()

	fields := map[string]string{
		"appName":     r.AppName,
		"versionName": r.VersionName,
		"versionCode": r.VersionCode,
		"platform":    r.Platform,
		"channel":     r.Channel,
		"changelog":   r.Changelog,
		"commitHash":  r.CommitHash,
		"buildStatus": r.BuildStatus,
	}
	if len(r.AllowedUDIDs) > 0 {
		data, err := json.Marshal(r.AllowedUDIDs)
		if err != nil {
			return nil, err
		}
		fields["allowedUDIDs"] = string(data)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, fields, filepath.Base(r.File), f))
	}()

	url := strings.TrimRight(r.Server, "/") + "/builds"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("POST builds: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Build *model.Build `json:"build"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusCreated {
		if result.Error != nil {
			return nil, fmt.Errorf("server returned %d: %s: %s", resp.StatusCode, result.Error.Code, result.Error.Message)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if result.Build == nil {
		return nil, fmt.Errorf("server response has no build")
	}
	return result.Build, nil
}

func writeForm(mw *multipart.Writer, fields map[string]string, name string, body io.Reader) error {
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="buildFile"; filename=%q`, name))
	h.Set("Content-Type", storage.ContentType(name))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}
