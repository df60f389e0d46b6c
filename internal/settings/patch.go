package settings

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apprelay/apprelay/internal/model"
)

// Patch is a partial settings update. Nil fields are left untouched.
type Patch struct {
	UseRemoteDB           *bool          `json:"useRemoteDb,omitempty"`
	UseObjectStorage      *bool          `json:"useObjectStorage,omitempty"`
	APIBaseURL            *string        `json:"apiBaseUrl,omitempty"`
	LocalBuildPath        *string        `json:"localBuildPath,omitempty"`
	MaxBuildsPerGroup     *int           `json:"maxBuildsPerGroup,omitempty"`
	DeletePolicy          *DeletePolicy  `json:"deletePolicy,omitempty"`
	EnableAutoClean       *bool          `json:"enableAutoClean,omitempty"`
	AISummaryEnabled      *bool          `json:"aiSummaryEnabled,omitempty"`
	FeedbackEnabled       *bool          `json:"feedbackEnabled,omitempty"`
	NotifyOnNewBuild      *bool          `json:"notifyOnNewBuild,omitempty"`
	CIIntegrationEnabled  *bool          `json:"ciIntegrationEnabled,omitempty"`
	BuildApprovalRequired *bool          `json:"buildApprovalRequired,omitempty"`
	QRCodeMode            *QRCodeMode    `json:"qrCodeMode,omitempty"`
	DefaultChannel        *model.Channel `json:"defaultChannel,omitempty"`
	MaxUploadSizeMB       *int           `json:"maxUploadSizeMB,omitempty"`
	UITheme               *Theme         `json:"uiTheme,omitempty"`
}

// Normalize validates the patch and coerces enum fields the same way
// stored values are repaired. The returned patch is safe to persist.
func (p Patch) Normalize() (Patch, error) {
	if p.APIBaseURL != nil {
		v := strings.TrimRight(strings.TrimSpace(*p.APIBaseURL), "/")
		if v == "" {
			return p, fmt.Errorf("%w: apiBaseUrl must not be empty", ErrInvalid)
		}
		p.APIBaseURL = &v
	}
	if p.LocalBuildPath != nil && strings.TrimSpace(*p.LocalBuildPath) == "" {
		return p, fmt.Errorf("%w: localBuildPath must not be empty", ErrInvalid)
	}
	if p.MaxBuildsPerGroup != nil && *p.MaxBuildsPerGroup < 1 {
		return p, fmt.Errorf("%w: maxBuildsPerGroup must be at least 1", ErrInvalid)
	}
	if p.MaxUploadSizeMB != nil && *p.MaxUploadSizeMB < 1 {
		return p, fmt.Errorf("%w: maxUploadSizeMB must be at least 1", ErrInvalid)
	}
	if p.DeletePolicy != nil && *p.DeletePolicy != DeleteAll {
		v := DeleteCIOnly
		p.DeletePolicy = &v
	}
	if p.QRCodeMode != nil && *p.QRCodeMode != QRBuildDetail {
		v := QRDownloadLink
		p.QRCodeMode = &v
	}
	if p.DefaultChannel != nil && !p.DefaultChannel.Valid() {
		return p, fmt.Errorf("%w: defaultChannel %q is not a known channel", ErrInvalid, *p.DefaultChannel)
	}
	if p.UITheme != nil && !p.UITheme.Valid() {
		return p, fmt.Errorf("%w: uiTheme must be light, dark or system", ErrInvalid)
	}
	return p, nil
}

// Values returns the patch's set fields keyed by their JSON name.
func (p Patch) Values() (map[string]json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode settings patch: %w", err)
	}
	values := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode settings patch: %w", err)
	}
	return values, nil
}

// Empty reports whether the patch sets nothing.
func (p Patch) Empty() bool {
	v, err := p.Values()
	return err == nil && len(v) == 0
}
