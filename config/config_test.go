package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults without an env file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "fern", cfg.AppName)
		assert.Equal(t, "fern:jobs", cfg.JobStream)
		assert.Equal(t, 720*time.Hour, cfg.JobRetention)
		assert.Equal(t, "/uploads", cfg.UploadDir)
		assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("PORT", "8080")
		t.Setenv("JOB_RETENTION", "24h")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 24*time.Hour, cfg.JobRetention)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	})

	t.Run("env file is read", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("WORKER_COUNT=9\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("WORKER_COUNT") })

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.WorkerCount)
	})

	t.Run("bad value", func(t *testing.T) {
		t.Setenv("REDIS_PORT", "not-a-port")
		_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		assert.ErrorContains(t, err, "failed to read config")
	})
}
