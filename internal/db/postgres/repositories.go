package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/store"
)

const repositoryColumns = `id, repo_url, default_branch, default_platform, default_channel,
	auto_trigger_enabled, created_at, updated_at`

type repositoryRow struct {
	ID                 string    `db:"id"`
	RepoURL            string    `db:"repo_url"`
	DefaultBranch      string    `db:"default_branch"`
	DefaultPlatform    string    `db:"default_platform"`
	DefaultChannel     string    `db:"default_channel"`
	AutoTriggerEnabled bool      `db:"auto_trigger_enabled"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r repositoryRow) toModel() model.MonitoredRepository {
	return model.MonitoredRepository{
		ID:                 r.ID,
		RepoURL:            r.RepoURL,
		DefaultBranch:      r.DefaultBranch,
		DefaultPlatform:    model.Platform(r.DefaultPlatform),
		DefaultChannel:     model.Channel(r.DefaultChannel),
		AutoTriggerEnabled: r.AutoTriggerEnabled,
		CreatedAt:          store.Normalize(r.CreatedAt),
		UpdatedAt:          store.Normalize(r.UpdatedAt),
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.RepoURL, r.DefaultBranch, string(r.DefaultPlatform), string(r.DefaultChannel),
		r.AutoTriggerEnabled, r.CreatedAt, r.UpdatedAt)
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
		err := tx.GetContext(ctx, &row, `SELECT `+repositoryColumns+` FROM monitored_repositories WHERE id = $1 FOR UPDATE`, id)
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
			SET repo_url = $1, default_branch = $2, default_platform = $3, default_channel = $4,
			    auto_trigger_enabled = $5, updated_at = $6
			WHERE id = $7`,
			r.RepoURL, r.DefaultBranch, string(r.DefaultPlatform), string(r.DefaultChannel),
			r.AutoTriggerEnabled, r.UpdatedAt, id)
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
	res, err := d.db.ExecContext(ctx, `DELETE FROM monitored_repositories WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete repository: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete repository: %w", err)
	}
	return n > 0, nil
}
