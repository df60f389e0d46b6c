package service

import (
	"context"
	"strings"
	"time"

	"github.com/apprelay/apprelay/internal/model"
)

type FeedbackInput struct {
	BuildID string `json:"buildId" validate:"required"`
	User    string `json:"user" validate:"required"`
	Comment string `json:"comment" validate:"required"`
}

func (s *Service) AddFeedback(ctx context.Context, in FeedbackInput) (*model.Feedback, error) {
	in.User = strings.TrimSpace(in.User)
	in.Comment = strings.TrimSpace(in.Comment)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.store.CreateFeedback(ctx, &model.Feedback{BuildID: in.BuildID, User: in.User, Comment: in.Comment})
	if err != nil {
		return nil, err
	}

	if cfg.FeedbackEnabled {
		fb := *f
		s.goBackground("feedback notification", 30*time.Second, func(ctx context.Context) error {
			b, err := s.store.GetBuild(ctx, fb.BuildID)
			if err != nil {
				return err
			}
			return s.notifier.NewFeedback(ctx, b, &fb)
		})
	}
	return f, nil
}

// ListFeedback returns a build's feedback, newest first.
func (s *Service) ListFeedback(ctx context.Context, buildID string) ([]model.Feedback, error) {
	if strings.TrimSpace(buildID) == "" {
		return nil, invalid("buildId", "is required")
	}
	return s.store.ListFeedback(ctx, buildID)
}
