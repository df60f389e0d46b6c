// Package config loads process configuration from the environment and
// optional .env files. Runtime settings editable over the API live in the
// settings store instead.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/apprelay/apprelay/internal/db"
	"github.com/apprelay/apprelay/internal/logging"
	s3client "github.com/apprelay/apprelay/internal/s3"
	"github.com/apprelay/apprelay/internal/server"
	"github.com/apprelay/apprelay/internal/service"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	Addr        string `env:"ADDR" envDefault:":8080"`

	// Database
	DBBackend   string `env:"DB_BACKEND" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"apprelay.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Object storage; disabled when S3_BUCKET is empty.
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3AccessKey string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Prefix    string `env:"S3_PREFIX" envDefault:"builds"`
	S3PublicURL string `env:"S3_PUBLIC_URL"`

	// Background work
	RetentionInterval time.Duration `env:"RETENTION_SWEEP_INTERVAL" envDefault:"1h"`
	CIDelay           time.Duration `env:"CI_SIMULATION_DELAY" envDefault:"15s"`
	CISuccessRate     float64       `env:"CI_SUCCESS_RATE" envDefault:"0.8"`

	// Rate limiting of mutating requests, per client.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Logging
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
}

// Load reads the first .env file found (".env.<ENV>", then ".env") and
// parses the environment. Variables already set win over file values.
func Load() (*Config, error) {
	locations := []string{".env"}
	if name := os.Getenv("ENV"); name != "" {
		locations = append([]string{".env." + name}, locations...)
	}
	for _, loc := range locations {
		if err := godotenv.Load(loc); err == nil {
			break
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBBackend {
	case db.BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite backend")
		}
	case db.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("DB_BACKEND must be sqlite or postgres, got %q", c.DBBackend)
	}
	if c.CISuccessRate < 0 || c.CISuccessRate > 1 {
		return fmt.Errorf("CI_SUCCESS_RATE must be between 0 and 1")
	}
	if c.RetentionInterval < 0 {
		return fmt.Errorf("RETENTION_SWEEP_INTERVAL must not be negative")
	}
	return c.Logging().Validate()
}

func (c *Config) DB() db.Config {
	return db.Config{Backend: c.DBBackend, SQLitePath: c.SQLitePath, PostgresDSN: c.DatabaseURL}
}

// S3 returns the object storage config, or false when no bucket is set.
func (c *Config) S3() (s3client.Config, bool) {
	if strings.TrimSpace(c.S3Bucket) == "" {
		return s3client.Config{}, false
	}
	return s3client.Config{
		Endpoint:  c.S3Endpoint,
		Region:    c.S3Region,
		Bucket:    c.S3Bucket,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Prefix:    c.S3Prefix,
		PublicURL: c.S3PublicURL,
	}, true
}

func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAgeDays,
	}
}

func (c *Config) Service() service.Config {
	return service.Config{CIDelay: c.CIDelay, CISuccessRate: c.CISuccessRate}
}

func (c *Config) Server() server.Options {
	return server.Options{Addr: c.Addr, RateLimitRPS: c.RateLimitRPS, RateLimitBurst: c.RateLimitBurst}
}
