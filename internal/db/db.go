// Package db opens the configured persistence backend.
package db

import (
	"context"
	"fmt"

	"github.com/apprelay/apprelay/internal/db/postgres"
	"github.com/apprelay/apprelay/internal/db/sqlite"
	"github.com/apprelay/apprelay/internal/store"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend     string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the store selected by cfg.Backend. The backend is fixed for
// the life of the process.
func Open(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		d, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		d, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
	}
}
