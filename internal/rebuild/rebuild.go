// Package rebuild derives a new build record from an existing one.
package rebuild

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/apprelay/apprelay/internal/model"
)

const (
	VersionNameSuffix = "rbld"
	VersionCodeSuffix = "RBLD"
)

// NextVersion bumps a trailing "-<suffix>-<k>" to k+1, or appends
// "-<suffix>-1". An empty version becomes "0-<suffix>-1".
func NextVersion(v, suffix string) string {
	if v == "" {
		v = "0"
	}
	re := regexp.MustCompile(`-` + regexp.QuoteMeta(suffix) + `-(\d+)$`)
	m := re.FindStringSubmatchIndex(v)
	if m == nil {
		return fmt.Sprintf("%s-%s-1", v, suffix)
	}
	k, err := strconv.ParseUint(v[m[2]:m[3]], 10, 64)
	if err != nil {
		// Digits too long for uint64; treat as a fresh suffix.
		return fmt.Sprintf("%s-%s-1", v, suffix)
	}
	return fmt.Sprintf("%s-%s-%d", v[:m[0]], suffix, k+1)
}

// Changelog is the changelog recorded on a forced rebuild.
func Changelog(orig *model.Build, username string) string {
	return fmt.Sprintf("Forced rebuild of v%s. Triggered by %s.\n---\nOriginal Changelog:\n%s",
		orig.VersionName, username, orig.Changelog)
}

// Derive returns the record for a rebuild of orig. The artifact (file name,
// type, size and download URL) is inherited; no new binary is produced. The
// caller assigns the id and qrCodeUrl.
func Derive(orig *model.Build, username string, now time.Time) model.Build {
	return model.Build{
		AppName:           orig.AppName,
		VersionName:       NextVersion(orig.VersionName, VersionNameSuffix),
		VersionCode:       NextVersion(orig.VersionCode, VersionCodeSuffix),
		Platform:          orig.Platform,
		Channel:           orig.Channel,
		Changelog:         Changelog(orig, username),
		PreviousChangelog: orig.Changelog,
		UploadDate:        now,
		BuildStatus:       model.StatusSuccess,
		CommitHash:        orig.CommitHash,
		DownloadURL:       orig.DownloadURL,
		Size:              orig.Size,
		FileName:          orig.FileName,
		FileType:          orig.FileType,
		Source:            model.SourceManual,
		TriggeredBy:       username,
		AllowedUDIDs:      append([]string(nil), orig.AllowedUDIDs...),
	}
}
