package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apprelay/apprelay/internal/settings"
	"github.com/apprelay/apprelay/internal/store"
)

// LoadSettings returns the stored payload merged with defaults, or defaults
// if the singleton row has never been written.
func (d *DB) LoadSettings(ctx context.Context) (settings.Settings, error) {
	var row struct {
		Payload   []byte    `db:"payload"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := d.db.GetContext(ctx, &row, `SELECT payload, updated_at FROM app_settings WHERE id = 1`)
	if isNoRows(err) {
		return settings.Defaults(), nil
	}
	if err != nil {
		return settings.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return decodeSettings(row.Payload, row.UpdatedAt)
}

// SaveSettings merges values into the stored payload with jsonb concatenation,
// so keys not named by this write keep whatever a concurrent writer stored.
func (d *DB) SaveSettings(ctx context.Context, values map[string]json.RawMessage) (settings.Settings, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	var row struct {
		Payload   []byte    `db:"payload"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err = d.db.GetContext(ctx, &row, `
		INSERT INTO app_settings (id, payload, updated_at)
		VALUES (1, $1::jsonb, $2)
		ON CONFLICT (id) DO UPDATE
		SET payload = app_settings.payload || EXCLUDED.payload, updated_at = EXCLUDED.updated_at
		RETURNING payload, updated_at`, data, store.Now())
	if err != nil {
		return settings.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return decodeSettings(row.Payload, row.UpdatedAt)
}

func decodeSettings(payload []byte, updatedAt time.Time) (settings.Settings, error) {
	s, err := settings.MergeWithDefaults(payload)
	if err != nil {
		return settings.Settings{}, err
	}
	t := store.Normalize(updatedAt)
	s.UpdatedAt = &t
	return s, nil
}
