package config

import (
	"fmt"
	"strings"
)

// Validate checks the merged configuration for values the pipeline cannot
// run with. It is called by Load after all override layers are applied.
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}

	if cfg.Database.URL == "" {
		if cfg.Database.Host == "" || cfg.Database.Name == "" || cfg.Database.User == "" {
			return fmt.Errorf("database host, name and user are required when no connection URL is set")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			return fmt.Errorf("database.port %d is out of range", cfg.Database.Port)
		}
	}

	if cfg.Cloud.DeviceID == "" {
		return fmt.Errorf("cloud.deviceId is required (SKYTRACK_IOT_DEVICE_ID)")
	}
	if cfg.Cloud.AuthToken == "" {
		return fmt.Errorf("cloud.authToken is required (SKYTRACK_IOT_AUTH_TOKEN)")
	}
	if cfg.Cloud.BaseURL == "" {
		return fmt.Errorf("cloud.baseUrl must not be empty")
	}
	if !strings.HasPrefix(cfg.Cloud.BaseURL, "http://") && !strings.HasPrefix(cfg.Cloud.BaseURL, "https://") {
		return fmt.Errorf("cloud.baseUrl %q must be an http(s) URL", cfg.Cloud.BaseURL)
	}
	if cfg.Cloud.APIVersion == "" {
		return fmt.Errorf("cloud.apiVersion must not be empty")
	}
	if len(cfg.Cloud.Metrics) == 0 {
		return fmt.Errorf("cloud.metrics must name at least one metric")
	}
	seen := make(map[string]bool, len(cfg.Cloud.Metrics))
	for _, name := range cfg.Cloud.Metrics {
		if name == "" {
			return fmt.Errorf("cloud.metrics contains an empty metric name")
		}
		if seen[name] {
			return fmt.Errorf("cloud.metrics contains duplicate metric %q", name)
		}
		seen[name] = true
	}
	if cfg.Cloud.PollIntervalSec <= 0 {
		return fmt.Errorf("cloud.pollIntervalSec must be positive, got %d", cfg.Cloud.PollIntervalSec)
	}
	if cfg.Cloud.RequestTimeoutSec <= 0 {
		return fmt.Errorf("cloud.requestTimeoutSec must be positive, got %d", cfg.Cloud.RequestTimeoutSec)
	}

	if cfg.Emitter.IntervalSec <= 0 {
		return fmt.Errorf("emitter.intervalSec must be positive, got %d", cfg.Emitter.IntervalSec)
	}
	if cfg.Emitter.StoreRetryBackoffSec < cfg.Emitter.IntervalSec {
		return fmt.Errorf("emitter.storeRetryBackoffSec (%d) must be >= emitter.intervalSec (%d)",
			cfg.Emitter.StoreRetryBackoffSec, cfg.Emitter.IntervalSec)
	}
	if cfg.Emitter.IdleLogCycles <= 0 {
		return fmt.Errorf("emitter.idleLogCycles must be positive, got %d", cfg.Emitter.IdleLogCycles)
	}

	if cfg.Stream.HeartbeatIntervalSec <= 0 {
		return fmt.Errorf("stream.heartbeatIntervalSec must be positive, got %d", cfg.Stream.HeartbeatIntervalSec)
	}
	if cfg.Stream.EventBufferSize <= 0 {
		return fmt.Errorf("stream.eventBufferSize must be positive, got %d", cfg.Stream.EventBufferSize)
	}

	if cfg.Snapshot.WindowMinutes <= 0 {
		return fmt.Errorf("snapshot.windowMinutes must be positive, got %d", cfg.Snapshot.WindowMinutes)
	}

	if cfg.Log.Dir == "" {
		return fmt.Errorf("log.dir must not be empty")
	}

	return nil
}
