package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Load merges Default() + optional YAML file + SKYTRACK_* env overrides, in
// that order, then validates the result.
//
// The file is taken from SKYTRACK_CONFIG when set, otherwise config.yaml in
// the working directory when present. Environment variables win over the
// file so containerized deployments can patch single values.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("SKYTRACK_CONFIG")
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies SKYTRACK_* environment variables to the config.
func applyEnvOverrides(cfg *Config) {
	// Server
	setString(&cfg.Server.Addr, "SKYTRACK_ADDR")

	// Database. DATABASE_URL is honored alongside the prefixed form because
	// most Postgres hosting platforms inject it under that exact name.
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.URL, "SKYTRACK_DB_URL")
	setString(&cfg.Database.Host, "SKYTRACK_DB_HOST")
	setInt(&cfg.Database.Port, "SKYTRACK_DB_PORT")
	setString(&cfg.Database.Name, "SKYTRACK_DB_NAME")
	setString(&cfg.Database.User, "SKYTRACK_DB_USER")
	setString(&cfg.Database.Password, "SKYTRACK_DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "SKYTRACK_DB_SSLMODE")

	// Upstream IoT API
	setString(&cfg.Cloud.DeviceID, "SKYTRACK_IOT_DEVICE_ID")
	setString(&cfg.Cloud.BaseURL, "SKYTRACK_IOT_BASE_URL")
	setString(&cfg.Cloud.APIVersion, "SKYTRACK_IOT_API_VERSION")
	setString(&cfg.Cloud.AuthToken, "SKYTRACK_IOT_AUTH_TOKEN")
	setInt(&cfg.Cloud.PollIntervalSec, "SKYTRACK_IOT_POLL_INTERVAL_SEC")
	setInt(&cfg.Cloud.RequestTimeoutSec, "SKYTRACK_IOT_REQUEST_TIMEOUT_SEC")
	if val := os.Getenv("SKYTRACK_IOT_METRICS"); val != "" {
		cfg.Cloud.Metrics = splitMetrics(val)
	}

	// Emitter
	setInt(&cfg.Emitter.IntervalSec, "SKYTRACK_EMITTER_INTERVAL_SEC")
	setInt(&cfg.Emitter.StoreRetryBackoffSec, "SKYTRACK_EMITTER_RETRY_BACKOFF_SEC")

	// Stream
	setInt(&cfg.Stream.HeartbeatIntervalSec, "SKYTRACK_STREAM_HEARTBEAT_SEC")
	setInt(&cfg.Stream.EventBufferSize, "SKYTRACK_STREAM_BUFFER_SIZE")

	// Snapshot
	setInt(&cfg.Snapshot.WindowMinutes, "SKYTRACK_SNAPSHOT_WINDOW_MIN")

	// Logging
	setString(&cfg.Log.Dir, "SKYTRACK_LOG_DIR")
}

// splitMetrics parses a comma-separated metric list, trimming blanks.
func splitMetrics(val string) []string {
	parts := strings.Split(val, ",")
	metrics := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			metrics = append(metrics, name)
		}
	}
	return metrics
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}
