package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "nixnox.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Nominatim.BaseURL)
	assert.Equal(t, "STARS4ALL project", cfg.Nominatim.UserAgent)
	assert.Equal(t, 2, cfg.Nominatim.MinDelaySecs)
	assert.Equal(t, 4, cfg.Ingest.MaxConcurrentFiles)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/nixnox
log:
  level: debug
  format: console
server:
  port: 9090
ingest:
  max_concurrent_files: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/nixnox", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Ingest.MaxConcurrentFiles)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Nominatim.MinDelaySecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("NIXNOX_STORE_DRIVER", "postgres")
	t.Setenv("NIXNOX_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("NIXNOX_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Nominatim.BaseURL = "https://nominatim.openstreetmap.org"
	cfg.Nominatim.MinDelaySecs = 2
	cfg.Ingest.MaxConcurrentFiles = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate())
}

func TestValidate_BadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidate_MissingNominatimURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Nominatim.BaseURL = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nominatim.base_url is required")
}

func TestValidate_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Ingest.MaxConcurrentFiles = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_files must be between 1 and 64")

	cfg.Ingest.MaxConcurrentFiles = 65
	err = cfg.Validate()
	assert.Error(t, err)

	cfg.Ingest.MaxConcurrentFiles = 64
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"
	cfg.Server.Port = -1
	cfg.Nominatim.MinDelaySecs = -5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "min_delay_secs must be >= 0")
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
