package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"strings"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/service"
	"github.com/apprelay/apprelay/internal/settings"
	"github.com/apprelay/apprelay/internal/storage"
	"github.com/apprelay/apprelay/internal/store"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

// multipartOverhead allows for form fields and boundaries on top of the file.
const multipartOverhead = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// --- Builds ---

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	builds, err := s.svc.ListBuilds(r.Context(), store.BuildFilter{
		Platform: model.Platform(q.Get("platform")),
		Channel:  model.Channel(q.Get("channel")),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, err := s.svc.GetBuild(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"build": nil,
			"error": errorBody{Code: codeNotFound, Message: fmt.Sprintf("build %s not found", id)},
		})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"build": b})
}

func (s *Server) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := s.svc.Settings(ctx)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				fmt.Sprintf("build file exceeds the %d MB limit", cfg.MaxUploadSizeMB))
			return
		}
		writeError(w, http.StatusBadRequest, codeValidation, "expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("buildFile")
	if errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, codeValidation, "buildFile: is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "buildFile: "+err.Error())
		return
	}
	defer file.Close()

	in := service.UploadInput{
		AppName:     r.FormValue("appName"),
		VersionName: r.FormValue("versionName"),
		VersionCode: r.FormValue("versionCode"),
		Platform:    model.Platform(r.FormValue("platform")),
		Channel:     model.Channel(r.FormValue("channel")),
		Changelog:   r.FormValue("changelog"),
		BuildStatus: model.BuildStatus(r.FormValue("buildStatus")),
		CommitHash:  r.FormValue("commitHash"),
		File:        file,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	if raw := strings.TrimSpace(r.FormValue("allowedUDIDs")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.AllowedUDIDs); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "allowedUDIDs: must be a JSON array of strings")
			return
		}
	}

	b, err := s.svc.CreateBuild(ctx, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"build": b})
}

func (s *Server) handleDeleteBuild(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteBuild(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Build %s and associated data deleted successfully.", id),
	})
}

func (s *Server) handleRecordDownload(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.RecordDownload(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updatedBuild": b})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TriggeredByUsername string `json:"triggeredByUsername"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.svc.Rebuild(r.Context(), r.PathValue("id"), req.TriggeredByUsername)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Build rebuilt successfully.", "newBuild": b})
}

// handleLocalDownload streams an artifact from the local build directory.
// The name is validated before the filesystem is touched.
func (s *Server) handleLocalDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if err := storage.ValidateStoredName(name); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid file name")
		return
	}
	cfg, err := s.svc.Settings(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	f, info, err := s.local.Open(cfg.LocalBuildPath, name)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, codeNotFound, "file not found")
		return
	}
	if err != nil {
		s.logger.Error("open local artifact", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "failed to read the build file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", storage.ContentType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// --- Dashboard & settings ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": cfg})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var p settings.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	cfg, err := s.svc.UpdateSettings(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": cfg, "message": "Settings updated successfully."})
}

// --- Feedback ---

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListFeedback(r.Context(), r.URL.Query().Get("buildId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedbacks": list})
}

func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var in service.FeedbackInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	f, err := s.svc.AddFeedback(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"feedback": f})
}

// --- CI ---

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.svc.ListRepositories(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repositories": repos})
}

func (s *Server) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepoURL            string         `json:"repo_url"`
		DefaultBranch      string         `json:"default_branch"`
		DefaultPlatform    model.Platform `json:"default_platform"`
		DefaultChannel     model.Channel  `json:"default_channel"`
		AutoTriggerEnabled *bool          `json:"auto_trigger_enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	repo := &model.MonitoredRepository{
		RepoURL:            req.RepoURL,
		DefaultBranch:      req.DefaultBranch,
		DefaultPlatform:    req.DefaultPlatform,
		DefaultChannel:     req.DefaultChannel,
		AutoTriggerEnabled: req.AutoTriggerEnabled == nil || *req.AutoTriggerEnabled,
	}
	created, err := s.svc.CreateRepository(r.Context(), repo)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"repository": created})
}

func (s *Server) handleUpdateRepository(w http.ResponseWriter, r *http.Request) {
	var p store.RepositoryPatch
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	updated, err := s.svc.UpdateRepository(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repository": updated})
}

func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteRepository(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fmt.Sprintf("Repository %s deleted.", id)})
}

func (s *Server) handleTriggerCI(w http.ResponseWriter, r *http.Request) {
	var in service.TriggerInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.svc.TriggerCI(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":  fmt.Sprintf("CI build triggered for %s on branch %s.", in.ProjectName, in.Branch),
		"newBuild": b,
	})
}
