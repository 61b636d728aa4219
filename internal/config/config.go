package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/afkd/pkg/history"
	"github.com/harun/afkd/pkg/reconnect"
	"github.com/harun/afkd/pkg/session"
)

// Config represents the main afkd configuration
type Config struct {
	// Data directory for the PID file, log file and run history
	DataDir string `json:"data_dir" mapstructure:"data_dir" yaml:"data_dir"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging" yaml:"logging"`
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway" yaml:"gateway"`
	Bridge  BridgeConfig  `json:"bridge" mapstructure:"bridge" yaml:"bridge"`
	Session SessionConfig `json:"session" mapstructure:"session" yaml:"session"`
	Safety  SafetyConfig  `json:"safety" mapstructure:"safety" yaml:"safety"`
	History HistoryConfig `json:"history" mapstructure:"history" yaml:"history"`
	Audit   AuditConfig   `json:"audit" mapstructure:"audit" yaml:"audit"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing" yaml:"tracing"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level" yaml:"level"`
	File      string `json:"file" mapstructure:"file" yaml:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty" yaml:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size" yaml:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age" yaml:"max_age"`    // days
	Compress  bool   `json:"compress" mapstructure:"compress" yaml:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction" yaml:"redaction"`
}

// GatewayConfig holds the control API server configuration
type GatewayConfig struct {
	Host              string `json:"host" mapstructure:"host" yaml:"host"`
	Port              int    `json:"port" mapstructure:"port" yaml:"port"`
	SharedSecret      string `json:"shared_secret" mapstructure:"shared_secret" yaml:"shared_secret"`
	RequestsPerMinute int    `json:"requests_per_minute" mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxConcurrent     int    `json:"max_concurrent" mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// BridgeConfig points at the game protocol bridge process
type BridgeConfig struct {
	URL              string `json:"url" mapstructure:"url" yaml:"url"`
	Secret           string `json:"secret" mapstructure:"secret" yaml:"secret"`
	HandshakeTimeout int    `json:"handshake_timeout" mapstructure:"handshake_timeout" yaml:"handshake_timeout"` // seconds
}

// SessionConfig tunes connection and reconnect timing
type SessionConfig struct {
	ConnectTimeout      int `json:"connect_timeout" mapstructure:"connect_timeout" yaml:"connect_timeout"` // seconds
	StartTimeout        int `json:"start_timeout" mapstructure:"start_timeout" yaml:"start_timeout"`       // seconds
	MaxReconnects       int `json:"max_reconnects" mapstructure:"max_reconnects" yaml:"max_reconnects"`
	KickDelay           int `json:"kick_delay" mapstructure:"kick_delay" yaml:"kick_delay"`                   // seconds
	DisconnectDelay     int `json:"disconnect_delay" mapstructure:"disconnect_delay" yaml:"disconnect_delay"` // seconds
	LogCapacity         int `json:"log_capacity" mapstructure:"log_capacity" yaml:"log_capacity"`
	PositionLogInterval int `json:"position_log_interval" mapstructure:"position_log_interval" yaml:"position_log_interval"` // seconds
}

// SafetyConfig tunes the anti-idle loop
type SafetyConfig struct {
	Enabled       bool `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Interval      int  `json:"interval" mapstructure:"interval" yaml:"interval"`                   // seconds
	IdleThreshold int  `json:"idle_threshold" mapstructure:"idle_threshold" yaml:"idle_threshold"` // seconds
	PulseMs       int  `json:"pulse_ms" mapstructure:"pulse_ms" yaml:"pulse_ms"`
}

// HistoryConfig controls the run archive
type HistoryConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Path          string `json:"path" mapstructure:"path" yaml:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days" yaml:"retention_days"`
	PruneSchedule string `json:"prune_schedule" mapstructure:"prune_schedule" yaml:"prune_schedule"`
}

// AuditConfig controls the control API audit trail
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Path    string `json:"path" mapstructure:"path" yaml:"path"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
}

// TracingConfig controls the OpenTelemetry tracer provider
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name" yaml:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Gateway: GatewayConfig{
			Host:              "127.0.0.1",
			Port:              8420,
			RequestsPerMinute: 120,
			MaxConcurrent:     10,
		},
		Bridge: BridgeConfig{
			URL:              "ws://127.0.0.1:8421/bridge",
			HandshakeTimeout: 10,
		},
		Session: SessionConfig{
			ConnectTimeout:      int(session.DefaultConnectTimeout / time.Second),
			StartTimeout:        int(session.DefaultConnectTimeout / time.Second),
			MaxReconnects:       reconnect.DefaultMaxAttempts,
			KickDelay:           int(reconnect.DefaultKickDelay / time.Second),
			DisconnectDelay:     int(reconnect.DefaultDisconnectDelay / time.Second),
			LogCapacity:         50,
			PositionLogInterval: 60,
		},
		Safety: SafetyConfig{
			Enabled:       true,
			Interval:      int(session.DefaultSafetyInterval / time.Second),
			IdleThreshold: int(session.DefaultIdleThreshold / time.Second),
			PulseMs:       int(session.DefaultPulseDuration / time.Millisecond),
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: int(history.DefaultRetention / (24 * time.Hour)),
			PruneSchedule: history.DefaultPruneSchedule,
		},
		Audit:   AuditConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "afkd",
			SampleRatio: 1.0,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid, reporting every problem
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ToSessionConfig converts the file units into a session.Config. Zero values
// fall back to the session defaults.
func (c *Config) ToSessionConfig() session.Config {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }

	return session.Config{
		ConnectTimeout: sec(c.Session.ConnectTimeout),
		StartTimeout:   sec(c.Session.StartTimeout),
		Policy: reconnect.Policy{
			MaxAttempts:     c.Session.MaxReconnects,
			KickDelay:       sec(c.Session.KickDelay),
			DisconnectDelay: sec(c.Session.DisconnectDelay),
		},
		LogCapacity:         c.Session.LogCapacity,
		PositionLogInterval: sec(c.Session.PositionLogInterval),
		Safety: session.SafetyConfig{
			Disabled:      !c.Safety.Enabled,
			Interval:      sec(c.Safety.Interval),
			IdleThreshold: sec(c.Safety.IdleThreshold),
			Pulse:         time.Duration(c.Safety.PulseMs) * time.Millisecond,
		},
	}.WithDefaults()
}

// Retention returns the history retention window
func (c *Config) Retention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// HandshakeTimeout returns the bridge dial timeout
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Bridge.HandshakeTimeout) * time.Second
}
