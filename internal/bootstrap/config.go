// Package bootstrap wires the domain ports and adapters into a Client the
// caller owns, replacing a global-singleton pattern with an explicit,
// caller-owned object, and exposes a per-tenant singleton factory on top of
// it. Grounded on bootstrap/config.go's `env:"..."`-tag loader, reusing
// common.SetConfigFromEnvVars directly rather than re-deriving it.
package bootstrap

import (
	"github.com/cascadedb/branchdata/common"
)

// Config is populated from environment variables via common.SetConfigFromEnvVars.
type Config struct {
	EnvName       string `env:"ENV_NAME"`
	LogLevel      string `env:"LOG_LEVEL"`
	DataDir       string `env:"DATA_DIR"`
	RemoteBaseURL string `env:"REMOTE_BASE_URL"`
	RemoteTimeout int64  `env:"REMOTE_TIMEOUT_MS"`
	CacheSize     int64  `env:"CACHE_SIZE"`
	RedisURL      string `env:"REDIS_URL"`
	HTTPPort      string `env:"HTTP_PORT"`

	OtelServiceName         string `env:"OTEL_RESOURCE_SERVICE_NAME"`
	OtelLibraryName         string `env:"OTEL_LIBRARY_NAME"`
	OtelServiceVersion      string `env:"OTEL_RESOURCE_SERVICE_VERSION"`
	OtelDeploymentEnv       string `env:"OTEL_RESOURCE_DEPLOYMENT_ENVIRONMENT"`
	OtelColExporterEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	EnableTelemetry         bool   `env:"ENABLE_TELEMETRY"`
}

// LoadConfig builds a Config from environment variables, applying the same
// sane local defaults a freshly cloned repo needs before any .env file is
// authored.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DataDir:       "./data",
		RemoteBaseURL: "http://localhost:4000",
		RemoteTimeout: 10000,
		CacheSize:     2048,
		HTTPPort:      "3000",
	}

	if err := common.SetConfigFromEnvVars(cfg); err != nil {
		return nil, err
	}

	// common.SetConfigFromEnvVars always writes the field, even when the
	// backing env var is absent (an int field becomes 0, a string field
	// becomes ""), so every pre-seeded default above must be reapplied
	// here rather than just the ones easiest to notice.
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}

	if cfg.RemoteBaseURL == "" {
		cfg.RemoteBaseURL = "http://localhost:4000"
	}

	if cfg.RemoteTimeout == 0 {
		cfg.RemoteTimeout = 10000
	}

	if cfg.CacheSize == 0 {
		cfg.CacheSize = 2048
	}

	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "3000"
	}

	return cfg, nil
}
