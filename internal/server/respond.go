package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/apprelay/apprelay/internal/service"
	"github.com/apprelay/apprelay/internal/settings"
	"github.com/apprelay/apprelay/internal/storage"
	"github.com/apprelay/apprelay/internal/store"
)

// Stable error codes carried in every error body.
const (
	codeValidation          = "VALIDATION_ERROR"
	codePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	codeNotFound            = "NOT_FOUND"
	codeConflict            = "CONFLICT"
	codeForbidden           = "FORBIDDEN"
	codeRateLimited         = "RATE_LIMITED"
	codeStorage             = "STORAGE_ERROR"
	codeSettingsUnavailable = "SETTINGS_UNAVAILABLE"
	codeInternal            = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// classify maps a service error to its HTTP status, code and public message.
// Server-side failures get a generic message.
func classify(err error) (int, string, string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, codeValidation, verr.Error()
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, codePayloadTooLarge, err.Error()
	case errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest, codeValidation, "invalid file name"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, codeNotFound, err.Error()
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, codeConflict, err.Error()
	case errors.Is(err, service.ErrCIDisabled):
		return http.StatusForbidden, codeForbidden, service.ErrCIDisabled.Error()
	case errors.Is(err, settings.ErrInvalid):
		return http.StatusBadRequest, codeValidation, err.Error()
	case errors.Is(err, settings.ErrUnavailable):
		return http.StatusInternalServerError, codeSettingsUnavailable, "settings are unavailable"
	case errors.Is(err, service.ErrStorage):
		return http.StatusInternalServerError, codeStorage, "failed to store the build file"
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}

// writeServiceError logs err and writes its classified response.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	logger := s.logger.With("method", r.Method, "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "error", err)
	}
	writeError(w, status, code, msg)
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &service.ValidationError{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}
