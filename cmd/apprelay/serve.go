package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/apprelay/apprelay/internal/config"
	"github.com/apprelay/apprelay/internal/db"
	"github.com/apprelay/apprelay/internal/logging"
	"github.com/apprelay/apprelay/internal/retention"
	s3client "github.com/apprelay/apprelay/internal/s3"
	"github.com/apprelay/apprelay/internal/server"
	"github.com/apprelay/apprelay/internal/service"
	"github.com/apprelay/apprelay/internal/settings"
	"github.com/apprelay/apprelay/internal/storage"
	"github.com/apprelay/apprelay/internal/store"
)

// storeFlags are the database overrides shared by serve and prune.
type storeFlags struct {
	backend string
	sqlite  string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.backend, "db-backend", "", "database backend: sqlite or postgres (overrides DB_BACKEND)")
	cmd.Flags().StringVar(&f.sqlite, "db", "", "SQLite database path (overrides SQLITE_PATH)")
}

func (f *storeFlags) apply(cfg *config.Config) error {
	if f.backend != "" {
		cfg.DBBackend = f.backend
	}
	if f.sqlite != "" {
		cfg.SQLitePath = f.sqlite
	}
	return cfg.Validate()
}

// components is the wired application core shared by serve and prune.
type components struct {
	logger    *slog.Logger
	store     store.Store
	settings  *settings.Service
	files     *storage.Store
	retention *retention.Engine
	close     func()
}

func setup(ctx context.Context, cfg *config.Config) (*components, error) {
	logger, logCloser, err := logging.New(cfg.Logging(), os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	st, err := db.Open(ctx, cfg.DB())
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database ready", "backend", cfg.DBBackend)

	var objects storage.ObjectStore
	if s3cfg, ok := cfg.S3(); ok {
		s3Log := logger.With("component", "s3")
		c, err := s3client.New(ctx, s3cfg, s3Log)
		if err != nil {
			_ = st.Close()
			_ = logCloser.Close()
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		if err := c.HeadBucket(ctx); err != nil {
			s3Log.Warn("bucket not reachable; uploads to object storage will fail", "bucket", s3cfg.Bucket, "error", err)
		}
		logger.Info("object storage enabled", "bucket", s3cfg.Bucket, "endpoint", s3cfg.Endpoint)
		objects = c
	}

	settingsSvc := settings.NewService(st, logger.With("component", "settings"))
	files := storage.New(objects, logger.With("component", "storage"))
	if cur, err := settingsSvc.Get(ctx); err == nil {
		if err := files.Check(cur); err != nil {
			logger.Warn("settings ask for object storage but no S3_BUCKET is set; uploads will fail until useObjectStorage is turned off", "error", err)
		}
	}
	engine := retention.NewEngine(st, settingsSvc, files, logger.With("component", "retention"))
	return &components{
		logger:    logger,
		store:     st,
		settings:  settingsSvc,
		files:     files,
		retention: engine,
		close: func() {
			_ = st.Close()
			_ = logCloser.Close()
		},
	}, nil
}

func newServeCommand() *cobra.Command {
	var (
		addr   string
		stores storeFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if err := stores.apply(cfg); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	stores.register(cmd)
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	c, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()
	logger := c.logger

	svc := service.New(service.Deps{
		Store:     c.store,
		Settings:  c.settings,
		Files:     c.files,
		Retention: c.retention,
	}, cfg.Service(), logger.With("component", "service"))

	var wg sync.WaitGroup
	if cfg.RetentionInterval > 0 {
		logger.Info("retention sweep enabled", "interval", cfg.RetentionInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.retention.Run(ctx, cfg.RetentionInterval)
		}()
	}

	srv := server.New(svc, c.files, cfg.Server(), logger.With("component", "http"))
	runErr := srv.Run(ctx)
	stop()

	svc.Stop()
	svc.Wait()
	wg.Wait()
	logger.Info("all background tasks stopped")
	return runErr
}
