// Package notify announces new builds and feedback. Delivery channels
// (push, email) plug in behind Notifier.
package notify

import (
	"context"
	"log/slog"

	"github.com/apprelay/apprelay/internal/model"
)

type Notifier interface {
	NewBuild(ctx context.Context, b *model.Build) error
	NewFeedback(ctx context.Context, b *model.Build, f *model.Feedback) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NewBuild(_ context.Context, b *model.Build) error {
	n.logger.Info("new build available",
		"build", b.ID,
		"app", b.AppName,
		"version", b.VersionName,
		"platform", b.Platform,
		"channel", b.Channel,
		"source", b.Source,
	)
	return nil
}

func (n *LogNotifier) NewFeedback(_ context.Context, b *model.Build, f *model.Feedback) error {
	n.logger.Info("new feedback",
		"build", b.ID,
		"app", b.AppName,
		"version", b.VersionName,
		"user", f.User,
	)
	return nil
}
