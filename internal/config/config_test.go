package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	dir := writeConfig(t, `
storage:
  driver: memory
  public_base_url: https://cdn.example.com/listings
jwt:
  secret: s3cr3t
upload:
  batch_timeout: 45s
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "listings", cfg.Database.Name)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 45*time.Second, cfg.Upload.BatchTimeout)
	assert.Equal(t, 15*time.Second, cfg.Upload.RollbackTimeout)
	assert.Equal(t, int64(7*1024*1024), cfg.Upload.MaxFileSize)
	assert.Equal(t, 8, cfg.Upload.MaxConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, `
storage:
  driver: memory
  public_base_url: https://cdn.example.com/listings
jwt:
  secret: from-file
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("UPLOAD_MAX_CONCURRENCY", "2")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 2, cfg.Upload.MaxConcurrency)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
}

func TestLoadConfig_NoFileUsesEnv(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("STORAGE_PUBLIC_BASE_URL", "http://localhost:9000/bucket")
	t.Setenv("JWT_SECRET", "x")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/bucket", cfg.Storage.PublicBaseURL)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown driver",
			body: "storage:\n  driver: gcs\n  public_base_url: http://x\njwt:\n  secret: s\n",
		},
		{
			name: "s3 without bucket",
			body: "storage:\n  driver: s3\n  public_base_url: http://x\njwt:\n  secret: s\n",
		},
		{
			name: "minio without endpoint",
			body: "storage:\n  driver: minio\n  public_base_url: http://x\n  minio:\n    bucket_name: b\njwt:\n  secret: s\n",
		},
		{
			name: "missing public base url",
			body: "storage:\n  driver: memory\njwt:\n  secret: s\n",
		},
		{
			name: "missing jwt secret",
			body: "storage:\n  driver: memory\n  public_base_url: http://x\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}
