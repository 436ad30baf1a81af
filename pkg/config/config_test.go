package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/config"
)

var envKeys = []string{
	"CC_CONFIG", "PORT", "LOG_LEVEL", "LOG_FORMAT", "CC_MAX_COST", "CC_ALLOWED_TYPES",
	"CC_STORE_PATH", "CC_RATE_RPS", "CC_RATE_BURST", "REDIS_ADDR",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "CC_MAX_REQUEST_BYTES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

// TestLoad_Defaults verifies the service boots with no configuration.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Zero(t, cfg.MaxCost)
	assert.Empty(t, cfg.StorePath)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBytes)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("CC_MAX_COST", "262144")
	t.Setenv("CC_ALLOWED_TYPES", "preimage-sha-256, ed25519-sha-256")
	t.Setenv("CC_STORE_PATH", "/tmp/cc.db")
	t.Setenv("CC_RATE_RPS", "2.5")
	t.Setenv("CC_RATE_BURST", "7")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, uint64(262144), cfg.MaxCost)
	assert.Equal(t, []string{"preimage-sha-256", "ed25519-sha-256"}, cfg.AllowedTypes)
	assert.Equal(t, "/tmp/cc.db", cfg.StorePath)
	assert.Equal(t, 2.5, cfg.RateRPS)
	assert.Equal(t, 7, cfg.RateBurst)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_InvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("CC_MAX_COST", "lots")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CC_MAX_COST")
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
logging:
  level: WARN
verify:
  max_cost: 1000
  allowed_types: [preimage-sha-256]
store:
  path: conditions.db
rate_limit:
  rps: 5
  burst: 10
`), 0o600))
	t.Setenv("CC_CONFIG", path)
	t.Setenv("LOG_LEVEL", "ERROR")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "ERROR", cfg.LogLevel, "env wins over file")
	assert.Equal(t, uint64(1000), cfg.MaxCost)
	assert.Equal(t, []string{"preimage-sha-256"}, cfg.AllowedTypes)
	assert.Equal(t, "conditions.db", cfg.StorePath)
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 10, cfg.RateBurst)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CC_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadFile_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

	_, err := config.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
