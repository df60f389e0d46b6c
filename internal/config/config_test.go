package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test-defaults")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.DBBackend)
	assert.Equal(t, time.Hour, cfg.RetentionInterval)
	assert.Equal(t, 15*time.Second, cfg.CIDelay)
	assert.InDelta(t, 0.8, cfg.CISuccessRate, 1e-9)

	_, ok := cfg.S3()
	assert.False(t, ok)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("DB_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://relay@localhost/relay?sslmode=disable")
	t.Setenv("S3_BUCKET", "artifacts")
	t.Setenv("S3_PUBLIC_URL", "https://cdn.test")
	t.Setenv("CI_SIMULATION_DELAY", "2s")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server().Addr)

	dbCfg := cfg.DB()
	assert.Equal(t, "postgres", dbCfg.Backend)
	assert.Equal(t, "postgres://relay@localhost/relay?sslmode=disable", dbCfg.PostgresDSN)

	s3, ok := cfg.S3()
	require.True(t, ok)
	assert.Equal(t, "artifacts", s3.Bucket)
	assert.Equal(t, "builds", s3.Prefix)
	assert.Equal(t, "https://cdn.test", s3.PublicURL)

	assert.Equal(t, 2*time.Second, cfg.Service().CIDelay)
	assert.Equal(t, "json", cfg.Logging().Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DB_BACKEND", "mysql"},
		{"CI_SUCCESS_RATE", "1.5"},
		{"LOG_LEVEL", "chatty"},
		{"CI_SIMULATION_DELAY", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("DB_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})
}
