package server

import (
	"net/http"

	"github.com/apprelay/apprelay/internal/storage"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	// Builds
	mux.HandleFunc("GET /builds", s.handleListBuilds)
	mux.HandleFunc("POST /builds", s.handleCreateBuild)
	mux.HandleFunc("GET /builds/{id}", s.handleGetBuild)
	mux.HandleFunc("DELETE /builds/{id}", s.handleDeleteBuild)
	mux.HandleFunc("POST /builds/{id}/download", s.handleRecordDownload)
	mux.HandleFunc("POST /builds/{id}/rebuild", s.handleRebuild)
	mux.HandleFunc("GET "+storage.LocalDownloadPath+"{filename}", s.handleLocalDownload)

	// Dashboard & settings
	mux.HandleFunc("GET /dashboard/stats", s.handleStats)
	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("PUT /settings", s.handleUpdateSettings)

	// Feedback
	mux.HandleFunc("GET /feedback", s.handleListFeedback)
	mux.HandleFunc("POST /feedback", s.handleCreateFeedback)

	// CI
	mux.HandleFunc("GET /ci/repositories", s.handleListRepositories)
	mux.HandleFunc("POST /ci/repositories", s.handleCreateRepository)
	mux.HandleFunc("PUT /ci/repositories/{id}", s.handleUpdateRepository)
	mux.HandleFunc("DELETE /ci/repositories/{id}", s.handleDeleteRepository)
	mux.HandleFunc("POST /ci/trigger", s.handleTriggerCI)
}
