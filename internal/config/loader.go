package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "relay.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RELAY_PORT")
	setString(&cfg.Server.CORSOrigin, "RELAY_CORS_ORIGIN")

	setString(&cfg.Storage.Backend, "RELAY_STORAGE_BACKEND")
	setString(&cfg.Storage.FSRoot, "RELAY_DATA_DIR")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RELAY_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RELAY_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RELAY_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RELAY_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RELAY_PG_HEALTH_CHECK")

	setBool(&cfg.NATS.Enabled, "RELAY_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "RELAY_NATS_STREAM")

	setBool(&cfg.Cache.Enabled, "RELAY_CACHE_ENABLED")
	setInt64(&cfg.Cache.MaxSizeMB, "RELAY_CACHE_SIZE_MB")

	setString(&cfg.Logging.Level, "RELAY_LOG_LEVEL")
	setString(&cfg.Logging.Format, "RELAY_LOG_FORMAT")
	setString(&cfg.Logging.Service, "RELAY_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RELAY_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBufferSize, "RELAY_LOG_ASYNC_BUFFER")
	setInt(&cfg.Logging.AsyncWorkers, "RELAY_LOG_ASYNC_WORKERS")

	setBool(&cfg.MCP.Enabled, "RELAY_MCP_ENABLED")
	setString(&cfg.MCP.Port, "RELAY_MCP_PORT")

	setBool(&cfg.Otel.Enabled, "RELAY_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFloat64(&cfg.Otel.SampleRatio, "RELAY_OTEL_SAMPLE_RATIO")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Backend {
	case "fs":
		if cfg.Storage.FSRoot == "" {
			return errors.New("storage.fs_root is required for the fs backend")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres backend")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", cfg.Storage.Backend)
	}
	if cfg.NATS.Enabled {
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required when nats is enabled")
		}
		if cfg.NATS.Stream == "" {
			return errors.New("nats.stream is required when nats is enabled")
		}
	}
	if cfg.Cache.Enabled && cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	if cfg.Otel.Enabled && (cfg.Otel.SampleRatio < 0 || cfg.Otel.SampleRatio > 1) {
		return errors.New("otel.sample_ratio must be in [0, 1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
