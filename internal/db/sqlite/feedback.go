package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/store"
)

type feedbackRow struct {
	ID        string `db:"id"`
	BuildID   string `db:"build_id"`
	UserName  string `db:"user_name"`
	Comment   string `db:"comment"`
	CreatedAt string `db:"created_at"`
}

func (d *DB) CreateFeedback(ctx context.Context, in *model.Feedback) (*model.Feedback, error) {
	f := *in
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Timestamp = store.Now()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO feedbacks (id, build_id, user_name, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.BuildID, f.User, f.Comment, formatTime(f.Timestamp))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("build %s: %w", f.BuildID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("insert feedback: %w", err)
	}
	return &f, nil
}

func (d *DB) ListFeedback(ctx context.Context, buildID string) ([]model.Feedback, error) {
	var rows []feedbackRow
	err := d.db.SelectContext(ctx, &rows, `
		SELECT id, build_id, user_name, comment, created_at
		FROM feedbacks WHERE build_id = ?
		ORDER BY created_at DESC, rowid DESC`, buildID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	out := make([]model.Feedback, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Feedback{
			ID:        r.ID,
			BuildID:   r.BuildID,
			User:      r.UserName,
			Comment:   r.Comment,
			Timestamp: parseTime(r.CreatedAt),
		})
	}
	return out, nil
}
