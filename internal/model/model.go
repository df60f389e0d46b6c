package model

import "time"

type Platform string

const (
	PlatformIOS     Platform = "iOS"
	PlatformAndroid Platform = "Android"
)

// Platforms lists every supported platform in display order.
func Platforms() []Platform { return []Platform{PlatformIOS, PlatformAndroid} }

func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

type Channel string

const (
	ChannelBeta       Channel = "Beta"
	ChannelStaging    Channel = "Staging"
	ChannelProduction Channel = "Production"
)

// Channels lists every release channel in display order.
func Channels() []Channel { return []Channel{ChannelBeta, ChannelStaging, ChannelProduction} }

func (c Channel) Valid() bool {
	switch c {
	case ChannelBeta, ChannelStaging, ChannelProduction:
		return true
	}
	return false
}

type BuildStatus string

const (
	StatusSuccess    BuildStatus = "Success"
	StatusFailed     BuildStatus = "Failed"
	StatusInProgress BuildStatus = "In Progress"
)

func (s BuildStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusInProgress:
		return true
	}
	return false
}

type BuildSource string

const (
	SourceManual BuildSource = "Manual Upload"
	SourceCI     BuildSource = "CI Pipeline"
)

func (s BuildSource) Valid() bool {
	return s == SourceManual || s == SourceCI
}

type Build struct {
	ID                string      `json:"id"`
	AppName           string      `json:"appName"`
	VersionName       string      `json:"versionName"`
	VersionCode       string      `json:"versionCode"`
	Platform          Platform    `json:"platform"`
	Channel           Channel     `json:"channel"`
	Changelog         string      `json:"changelog"`
	PreviousChangelog string      `json:"previousChangelog,omitempty"`
	UploadDate        time.Time   `json:"uploadDate"`
	BuildStatus       BuildStatus `json:"buildStatus"`
	CommitHash        string      `json:"commitHash,omitempty"`
	DownloadURL       string      `json:"downloadUrl"`
	QRCodeURL         string      `json:"qrCodeUrl,omitempty"`
	Size              string      `json:"size"`
	FileName          string      `json:"fileName"`
	FileType          string      `json:"fileType"`
	DownloadCount     int64       `json:"downloadCount"`
	Source            BuildSource `json:"source"`
	CIBuildID         string      `json:"ciBuildId,omitempty"`
	PipelineStatus    BuildStatus `json:"pipelineStatus,omitempty"`
	CILogsURL         string      `json:"ciLogsUrl,omitempty"`
	TriggeredBy       string      `json:"triggeredBy,omitempty"`
	AllowedUDIDs      []string    `json:"allowedUDIDs,omitempty"`
}

// Group is the retention unit: builds sharing app, platform and channel.
type Group struct {
	AppName  string   `json:"appName"`
	Platform Platform `json:"platform"`
	Channel  Channel  `json:"channel"`
}

func (b *Build) Group() Group {
	return Group{AppName: b.AppName, Platform: b.Platform, Channel: b.Channel}
}

func (g Group) String() string {
	return g.AppName + "/" + string(g.Platform) + "/" + string(g.Channel)
}

// Succeeded reports whether the build counts as successful for stats.
func (b *Build) Succeeded() bool {
	if b.BuildStatus == StatusSuccess {
		return true
	}
	return b.Source == SourceCI && b.PipelineStatus == StatusSuccess
}

type Feedback struct {
	ID        string    `json:"id"`
	BuildID   string    `json:"buildId"`
	User      string    `json:"user"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

type MonitoredRepository struct {
	ID                 string    `json:"id"`
	RepoURL            string    `json:"repo_url"`
	DefaultBranch      string    `json:"default_branch"`
	DefaultPlatform    Platform  `json:"default_platform"`
	DefaultChannel     Channel   `json:"default_channel"`
	AutoTriggerEnabled bool      `json:"auto_trigger_enabled"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type VersionDownloads struct {
	VersionID   string   `json:"versionId"`
	AppName     string   `json:"appName"`
	VersionName string   `json:"versionName"`
	Platform    Platform `json:"platform"`
	Count       int64    `json:"count"`
}

type DashboardStats struct {
	TotalBuilds          int                `json:"totalBuilds"`
	DownloadsByVersion   []VersionDownloads `json:"downloadsByVersion"`
	BuildSuccessRatio    float64            `json:"buildSuccessRatio"`
	ChannelDistribution  map[Channel]int    `json:"channelDistribution"`
	PlatformDistribution map[Platform]int   `json:"platformDistribution"`
}
