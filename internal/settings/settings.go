// Package settings holds the singleton operational configuration that every
// other component reads: retention limits, storage mode and feature toggles.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/apprelay/apprelay/internal/model"
)

var (
	// ErrUnavailable means settings could not be loaded or initialized.
	ErrUnavailable = errors.New("settings unavailable")
	// ErrInvalid is wrapped by every rejected settings patch.
	ErrInvalid = errors.New("invalid settings")
)

type DeletePolicy string

const (
	DeleteCIOnly DeletePolicy = "CIOnly"
	DeleteAll    DeletePolicy = "All"
)

type QRCodeMode string

const (
	QRDownloadLink QRCodeMode = "DownloadLink"
	QRBuildDetail  QRCodeMode = "BuildDetail"
)

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

type Settings struct {
	// UseRemoteDB is informational; the relational backend is fixed at process start.
	UseRemoteDB           bool          `json:"useRemoteDb"`
	UseObjectStorage      bool          `json:"useObjectStorage"`
	APIBaseURL            string        `json:"apiBaseUrl"`
	LocalBuildPath        string        `json:"localBuildPath"`
	MaxBuildsPerGroup     int           `json:"maxBuildsPerGroup"`
	DeletePolicy          DeletePolicy  `json:"deletePolicy"`
	EnableAutoClean       bool          `json:"enableAutoClean"`
	AISummaryEnabled      bool          `json:"aiSummaryEnabled"`
	FeedbackEnabled       bool          `json:"feedbackEnabled"`
	NotifyOnNewBuild      bool          `json:"notifyOnNewBuild"`
	CIIntegrationEnabled  bool          `json:"ciIntegrationEnabled"`
	BuildApprovalRequired bool          `json:"buildApprovalRequired"`
	QRCodeMode            QRCodeMode    `json:"qrCodeMode"`
	DefaultChannel        model.Channel `json:"defaultChannel"`
	MaxUploadSizeMB       int           `json:"maxUploadSizeMB"`
	UITheme               Theme         `json:"uiTheme"`
	UpdatedAt             *time.Time    `json:"updated_at,omitempty"`
}

// Defaults returns the settings used for any field the store has never seen.
func Defaults() Settings {
	return Settings{
		UseRemoteDB:           true,
		UseObjectStorage:      true,
		APIBaseURL:            "http://localhost:3000",
		LocalBuildPath:        "_local_build_storage",
		MaxBuildsPerGroup:     10,
		DeletePolicy:          DeleteCIOnly,
		EnableAutoClean:       true,
		AISummaryEnabled:      true,
		FeedbackEnabled:       true,
		NotifyOnNewBuild:      false,
		CIIntegrationEnabled:  true,
		BuildApprovalRequired: false,
		QRCodeMode:            QRDownloadLink,
		DefaultChannel:        model.ChannelBeta,
		MaxUploadSizeMB:       200,
		UITheme:               ThemeDark,
	}
}

// MaxUploadBytes is the upload size cap in bytes.
func (s Settings) MaxUploadBytes() int64 {
	return int64(s.MaxUploadSizeMB) * 1024 * 1024
}

// MergeWithDefaults decodes a stored JSON object over Defaults. Keys absent
// from payload keep their default; present keys win. Stored values that no
// longer pass validation fall back to the default for that field.
func MergeWithDefaults(payload []byte) (Settings, error) {
	s := Defaults()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &s); err != nil {
			return Defaults(), fmt.Errorf("decode settings payload: %w", err)
		}
	}
	return s.repair(), nil
}

// MergeValues is MergeWithDefaults for key/value storage.
func MergeValues(values map[string]json.RawMessage) (Settings, error) {
	if len(values) == 0 {
		return Defaults(), nil
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return Defaults(), fmt.Errorf("encode settings values: %w", err)
	}
	return MergeWithDefaults(payload)
}

func (s Settings) repair() Settings {
	d := Defaults()
	if s.MaxBuildsPerGroup < 1 {
		s.MaxBuildsPerGroup = d.MaxBuildsPerGroup
	}
	if s.MaxUploadSizeMB < 1 {
		s.MaxUploadSizeMB = d.MaxUploadSizeMB
	}
	if s.DeletePolicy != DeleteAll {
		s.DeletePolicy = DeleteCIOnly
	}
	if s.QRCodeMode != QRBuildDetail {
		s.QRCodeMode = QRDownloadLink
	}
	if !s.DefaultChannel.Valid() {
		s.DefaultChannel = d.DefaultChannel
	}
	if !s.UITheme.Valid() {
		s.UITheme = d.UITheme
	}
	if s.APIBaseURL == "" {
		s.APIBaseURL = d.APIBaseURL
	}
	if s.LocalBuildPath == "" {
		s.LocalBuildPath = d.LocalBuildPath
	}
	return s
}
