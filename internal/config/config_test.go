package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 3, cfg.Batch.MaxAttempts)
	assert.Equal(t, 100, cfg.Batch.InitialBackoffMs)
	assert.Empty(t, cfg.Extraction.DefaultPipelineVersion)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.6, cfg.Monitoring.MinAvgConfidence, 1e-9)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: sagebase.db
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrency: 8
  rate_per_sec: 2.5
extraction:
  default_pipeline_version: gemini-2.0-flash-v1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sagebase.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrency)
	assert.InDelta(t, 2.5, cfg.Batch.RatePerSec, 0.001)
	assert.Equal(t, "gemini-2.0-flash-v1", cfg.Extraction.DefaultPipelineVersion)
	// Defaults still apply for unset values
	assert.Equal(t, 5000, cfg.Batch.MaxBackoffMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SAGEBASE_STORE_DRIVER", "postgres")
	t.Setenv("SAGEBASE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SAGEBASE_SERVER_PORT", "3000")
	t.Setenv("SAGEBASE_STORE_DATABASE_URL", "postgres://localhost/sagebase")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/sagebase", cfg.Store.DatabaseURL)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "sagebase.db"
	cfg.Server.Port = 8080
	cfg.Batch.MaxConcurrency = 4
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"store", "serve", "batch"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_MissingStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port only matters when serving.
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateBatch_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrency = 0
	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency must be between 1 and 64")

	cfg.Batch.MaxConcurrency = 65
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.MaxConcurrency = 64
	cfg.Batch.RatePerSec = -1
	err = cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_per_sec")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_Monitoring(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.MinAvgConfidence = 1.5
	cfg.Monitoring.LookbackWindowHours = 0

	// Thresholds are only checked when monitoring is on.
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Monitoring.Enabled = true
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_avg_confidence")
	assert.Contains(t, err.Error(), "lookback_window_hours")
}
