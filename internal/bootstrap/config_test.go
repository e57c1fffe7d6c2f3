package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsSurviveWithNoEnvVarsSet(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "http://localhost:4000", cfg.RemoteBaseURL)
	assert.Equal(t, int64(10000), cfg.RemoteTimeout)
	assert.Equal(t, int64(2048), cfg.CacheSize)
	assert.Equal(t, "3000", cfg.HTTPPort)
}

func TestLoadConfig_EnvVarsOverrideDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/data")
	t.Setenv("REMOTE_TIMEOUT_MS", "5000")
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("ENABLE_TELEMETRY", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/var/data", cfg.DataDir)
	assert.Equal(t, int64(5000), cfg.RemoteTimeout)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.True(t, cfg.EnableTelemetry)
	assert.Equal(t, int64(2048), cfg.CacheSize, "a field whose env var is unset must keep its default even when siblings are overridden")
}
