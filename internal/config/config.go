package config

import (
	"fmt"
	"time"
)

// Config is the complete configuration for the skytrack service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cloud    CloudConfig    `yaml:"cloud"`
	Emitter  EmitterConfig  `yaml:"emitter"`
	Stream   StreamConfig   `yaml:"stream"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutSec int    `yaml:"readTimeoutSec"`
	// WriteTimeoutSec of 0 disables the write deadline; the SSE stream
	// endpoint outlives any fixed write timeout.
	WriteTimeoutSec int `yaml:"writeTimeoutSec"`
	IdleTimeoutSec  int `yaml:"idleTimeoutSec"`
}

// DatabaseConfig holds the Postgres connection settings for the telemetry store.
type DatabaseConfig struct {
	// URL, when set, is used verbatim as the connection string and the
	// individual fields below are ignored.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslMode"`
}

// CloudConfig holds the IoT Central upstream settings for the fetcher.
type CloudConfig struct {
	DeviceID          string   `yaml:"deviceId"`
	BaseURL           string   `yaml:"baseUrl"`
	APIVersion        string   `yaml:"apiVersion"`
	AuthToken         string   `yaml:"authToken"`
	Metrics           []string `yaml:"metrics"`
	PollIntervalSec   int      `yaml:"pollIntervalSec"`
	RequestTimeoutSec int      `yaml:"requestTimeoutSec"`
}

// EmitterConfig holds the change-tail emitter settings.
type EmitterConfig struct {
	IntervalSec int `yaml:"intervalSec"`
	// StoreRetryBackoffSec is slept instead of IntervalSec after a store
	// connectivity failure.
	StoreRetryBackoffSec int `yaml:"storeRetryBackoffSec"`
	// IdleLogCycles controls how often consecutive no-data iterations are
	// reported (first one, then every Nth).
	IdleLogCycles int `yaml:"idleLogCycles"`
}

// StreamConfig holds SSE distribution settings.
type StreamConfig struct {
	HeartbeatIntervalSec int `yaml:"heartbeatIntervalSec"`
	HeartbeatJitterMs    int `yaml:"heartbeatJitterMs"`
	EventBufferSize      int `yaml:"eventBufferSize"`
}

// SnapshotConfig holds the initial-data endpoint settings.
type SnapshotConfig struct {
	WindowMinutes int `yaml:"windowMinutes"`
}

// LogConfig holds service log and audit journal settings.
type LogConfig struct {
	Dir            string `yaml:"dir"`
	FileMaxSizeMB  int    `yaml:"fileMaxSizeMb"`
	FileMaxBackups int    `yaml:"fileMaxBackups"`
	FileMaxAgeDays int    `yaml:"fileMaxAgeDays"`
}

// Default returns the baseline configuration. Values with no sane default
// (device id, auth token, database credentials) are left empty and caught by
// Validate when not supplied via file or environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 0,
			IdleTimeoutSec:  120,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "skyking",
			User:    "postgres",
			SSLMode: "disable",
		},
		Cloud: CloudConfig{
			BaseURL:    "https://skyking.azureiotcentral.com",
			APIVersion: "2022-07-31",
			Metrics: []string{
				"AlturaDron", "BaterA", "RPM", "AceleraciN", "Velocidad",
				"Temperatura_Motor1", "Temperatura_Motor2",
				"Temperatura_Motor3", "Temperatura_Motor4",
			},
			PollIntervalSec:   30,
			RequestTimeoutSec: 10,
		},
		Emitter: EmitterConfig{
			IntervalSec:          1,
			StoreRetryBackoffSec: 10,
			IdleLogCycles:        60,
		},
		Stream: StreamConfig{
			HeartbeatIntervalSec: 15,
			HeartbeatJitterMs:    500,
			EventBufferSize:      64,
		},
		Snapshot: SnapshotConfig{
			WindowMinutes: 60,
		},
		Log: LogConfig{
			Dir:            "logs",
			FileMaxSizeMB:  20,
			FileMaxBackups: 5,
			FileMaxAgeDays: 14,
		},
	}
}

// DSN returns the lib/pq connection string, preferring the full URL form
// when one was configured.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, sslMode)
}

// ReadTimeout returns the HTTP read timeout.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the HTTP write timeout (0 means disabled).
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}

// IdleTimeout returns the HTTP idle timeout.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSec) * time.Second
}

// PollInterval returns the sleep between fetch cycles.
func (c CloudConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// RequestTimeout returns the per-metric HTTP request timeout.
func (c CloudConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Interval returns the emitter iteration interval.
func (e EmitterConfig) Interval() time.Duration {
	return time.Duration(e.IntervalSec) * time.Second
}

// StoreRetryBackoff returns the sleep applied after store connectivity loss.
func (e EmitterConfig) StoreRetryBackoff() time.Duration {
	return time.Duration(e.StoreRetryBackoffSec) * time.Second
}

// HeartbeatInterval returns the SSE heartbeat cadence.
func (s StreamConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSec) * time.Second
}

// HeartbeatJitter returns the jitter added to the heartbeat cadence.
func (s StreamConfig) HeartbeatJitter() time.Duration {
	return time.Duration(s.HeartbeatJitterMs) * time.Millisecond
}

// Window returns the snapshot lookback window.
func (s SnapshotConfig) Window() time.Duration {
	return time.Duration(s.WindowMinutes) * time.Minute
}
