package service

import (
	"errors"

	"github.com/apprelay/apprelay/internal/store"
)

var (
	// ErrStorage wraps artifact storage failures. Callers surface a generic
	// message; details go to the log.
	ErrStorage = errors.New("storage error")
	// ErrTooLarge is returned when an upload exceeds settings.maxUploadSizeMB.
	ErrTooLarge = errors.New("upload exceeds the configured size limit")
	// ErrCIDisabled is returned by CI operations while ciIntegrationEnabled is off.
	ErrCIDisabled = errors.New("CI/CD integration is disabled in settings")
)

// ValidationError reports a missing or malformed input field.
type ValidationError = store.ValidationError

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
