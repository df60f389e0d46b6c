package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/store"
)

const repositoryColumns = `id, repo_url, default_branch, default_platform, default_channel,
	auto_trigger_enabled, created_at, updated_at`

type repositoryRow struct {
	ID                 string `db:"id"`
	RepoURL            string `db:"repo_url"`
	DefaultBranch      string `db:"default_branch"`
	DefaultPlatform    string `db:"default_platform"`
	DefaultChannel     string `db:"default_channel"`
	AutoTriggerEnabled int64  `db:"auto_trigger_enabled"`
	CreatedAt          string `db:"created_at"`
	UpdatedAt          string `db:"updated_at"`
}

func (r repositoryRow) toModel() model.MonitoredRepository {
	return model.MonitoredRepository{
		ID:                 r.ID,
		RepoURL:            r.RepoURL,
		DefaultBranch:      r.DefaultBranch,
		DefaultPlatform:    model.Platform(r.DefaultPlatform),
		DefaultChannel:     model.Channel(r.DefaultChannel),
		AutoTriggerEnabled: r.AutoTriggerEnabled != 0,
		CreatedAt:          parseTime(r.CreatedAt),
		UpdatedAt:          parseTime(r.UpdatedAt),
	}
}

func (d *DB) ListRepositories(ctx context.Context) ([]model.MonitoredRepository, error) {
	var rows []repositoryRow
	err := d.db.SelectContext(ctx, &rows, `SELECT `+repositoryColumns+` FROM monitored_repositories ORDER BY repo_url ASC`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	out := make([]model.MonitoredRepository, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (d *DB) CreateRepository(ctx context.Context, in *model.MonitoredRepository) (*model.MonitoredRepository, error) {
	r, err := store.PrepareRepository(in)
	if err != nil {
		return nil, err
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO monitored_repositories (`+repositoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RepoURL, r.DefaultBranch, string(r.DefaultPlatform), string(r.DefaultChannel),
		boolToInt64(r.AutoTriggerEnabled), formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("repository %s: %w", r.RepoURL, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert repository: %w", err)
	}
	return &r, nil
}

func (d *DB) UpdateRepository(ctx context.Context, id string, p store.RepositoryPatch) (*model.MonitoredRepository, error) {
	var out *model.MonitoredRepository
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		var row repositoryRow
		err := tx.GetContext(ctx, &row, `SELECT `+repositoryColumns+` FROM monitored_repositories WHERE id = ?`, id)
		if isNoRows(err) {
			return fmt.Errorf("repository %s: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get repository: %w", err)
		}

		r, err := store.ApplyRepositoryPatch(row.toModel(), p)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE monitored_repositories
			SET repo_url = ?, default_branch = ?, default_platform = ?, default_channel = ?,
			    auto_trigger_enabled = ?, updated_at = ?
			WHERE id = ?`,
			r.RepoURL, r.DefaultBranch, string(r.DefaultPlatform), string(r.DefaultChannel),
			boolToInt64(r.AutoTriggerEnabled), formatTime(r.UpdatedAt), id)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("repository %s: %w", r.RepoURL, store.ErrConflict)
			}
			return fmt.Errorf("update repository: %w", err)
		}
		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) DeleteRepository(ctx context.Context, id string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM monitored_repositories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete repository: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete repository: %w", err)
	}
	return n > 0, nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
