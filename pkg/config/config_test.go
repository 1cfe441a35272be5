package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plugmart/plugmart/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "filesystem", cfg.Storage.Type)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, int64(50*1024*1024), cfg.Server.MaxUploadBytes)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PLUGMART_PORT", "8888")
	t.Setenv("PLUGMART_DB_DRIVER", "sqlite3")
	t.Setenv("PLUGMART_DB_URL", "file:plugmart.db")
	t.Setenv("PLUGMART_REDIS_ENABLED", "true")
	t.Setenv("PLUGMART_LOG_LEVEL", "debug")
	t.Setenv("PLUGMART_READ_TIMEOUT", "5s")
	t.Setenv("PLUGMART_CORS_ORIGINS", "https://plugmart.io, https://staging.plugmart.io")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://plugmart.io", "https://staging.plugmart.io"}, cfg.Server.CORSOrigins)
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugmart.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  max_upload_bytes: 1048576
database:
  driver: sqlite3
  url: "file:test.db"
`), 0o644))

	t.Setenv("PLUGMART_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, int64(1048576), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	// Values absent from the file keep their env/default values
	assert.Equal(t, "9090", cfg.Server.HealthPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "same ports",
			mutate:  func(c *Config) { c.Server.HealthPort = c.Server.Port },
			wantErr: "must be different",
		},
		{
			name:    "bad driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "invalid database driver",
		},
		{
			name:    "bad storage type",
			mutate:  func(c *Config) { c.Storage.Type = "ftp" },
			wantErr: "invalid storage type",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Storage.Type = "s3"; c.Storage.S3Bucket = "" },
			wantErr: "S3 bucket is required",
		},
		{
			name:    "otel without endpoint",
			mutate:  func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelEndpoint = "" },
			wantErr: "OpenTelemetry endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugmart.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"8081\"\n"), 0o644))

	t.Setenv("PLUGMART_CONFIG_FILE", path)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"8082\"\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "8082", cfg.Server.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("config reload was not observed")
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, ParseLogLevel("WARNING"))
	assert.Equal(t, observability.InfoLevel, ParseLogLevel("bogus"))
}
