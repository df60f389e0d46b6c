package service

import (
	"context"
	"sort"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/store"
)

// topDownloads is how many versions the dashboard ranks.
const topDownloads = 5

func (s *Service) Stats(ctx context.Context) (model.DashboardStats, error) {
	builds, err := s.store.ListBuilds(ctx, store.BuildFilter{})
	if err != nil {
		return model.DashboardStats{}, err
	}
	return ComputeStats(builds), nil
}

// ComputeStats aggregates builds for the dashboard. Distributions include
// every platform and channel, zero-filled.
func ComputeStats(builds []model.Build) model.DashboardStats {
	stats := model.DashboardStats{
		TotalBuilds:          len(builds),
		DownloadsByVersion:   []model.VersionDownloads{},
		ChannelDistribution:  make(map[model.Channel]int),
		PlatformDistribution: make(map[model.Platform]int),
	}
	for _, c := range model.Channels() {
		stats.ChannelDistribution[c] = 0
	}
	for _, p := range model.Platforms() {
		stats.PlatformDistribution[p] = 0
	}

	succeeded := 0
	for i := range builds {
		b := &builds[i]
		if b.Succeeded() {
			succeeded++
		}
		stats.ChannelDistribution[b.Channel]++
		stats.PlatformDistribution[b.Platform]++
		if b.DownloadCount > 0 {
			stats.DownloadsByVersion = append(stats.DownloadsByVersion, model.VersionDownloads{
				VersionID:   b.ID,
				AppName:     b.AppName,
				VersionName: b.VersionName,
				Platform:    b.Platform,
				Count:       b.DownloadCount,
			})
		}
	}
	if len(builds) > 0 {
		stats.BuildSuccessRatio = float64(succeeded) / float64(len(builds))
	}

	sort.SliceStable(stats.DownloadsByVersion, func(i, j int) bool {
		return stats.DownloadsByVersion[i].Count > stats.DownloadsByVersion[j].Count
	})
	if len(stats.DownloadsByVersion) > topDownloads {
		stats.DownloadsByVersion = stats.DownloadsByVersion[:topDownloads]
	}
	return stats
}
