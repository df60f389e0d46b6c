package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/apprelay/apprelay/internal/settings"
	"github.com/apprelay/apprelay/internal/store"
)

// Settings are stored one row per key so an update touches only the
// fields it names.

type settingRow struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	UpdatedAt string `db:"updated_at"`
}

func (d *DB) LoadSettings(ctx context.Context) (settings.Settings, error) {
	return loadSettings(ctx, d.db)
}

func loadSettings(ctx context.Context, q sqlx.QueryerContext) (settings.Settings, error) {
	var rows []settingRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT key, value, updated_at FROM settings`); err != nil {
		return settings.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	values := make(map[string]json.RawMessage, len(rows))
	var latest time.Time
	for _, r := range rows {
		values[r.Key] = json.RawMessage(r.Value)
		if t := parseTime(r.UpdatedAt); t.After(latest) {
			latest = t
		}
	}
	s, err := settings.MergeValues(values)
	if err != nil {
		return settings.Settings{}, err
	}
	if !latest.IsZero() {
		s.UpdatedAt = &latest
	}
	return s, nil
}

func (d *DB) SaveSettings(ctx context.Context, values map[string]json.RawMessage) (settings.Settings, error) {
	var out settings.Settings
	now := formatTime(store.Now())
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		for key, value := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, string(value), now)
			if err != nil {
				return fmt.Errorf("save setting %s: %w", key, err)
			}
		}
		s, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}
