package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/harun/afkd/pkg/history"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateHost validates a listen host. Empty means all interfaces.
func (v *Validator) ValidateHost(host string) error {
	if host == "" || host == "localhost" {
		return nil
	}
	if net.ParseIP(host) == nil {
		return fmt.Errorf("invalid listen host: %s", host)
	}
	return nil
}

// ValidateBridgeURL validates the bridge WebSocket URL
func (v *Validator) ValidateBridgeURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("bridge url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid bridge url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("bridge url must use ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("bridge url has no host")
	}
	return nil
}

// ValidateSharedSecret rejects secrets too short to be worth checking
func (v *Validator) ValidateSharedSecret(secret string) error {
	if secret == "" {
		return nil
	}
	if len(secret) < 16 {
		return fmt.Errorf("shared secret must be at least 16 characters")
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 || cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging max_size and max_age must be >= 0"))
	}

	if err := v.ValidateHost(cfg.Gateway.Host); err != nil {
		errors = append(errors, fmt.Errorf("gateway: %w", err))
	}
	if err := v.ValidatePort(cfg.Gateway.Port); err != nil {
		errors = append(errors, fmt.Errorf("gateway: %w", err))
	}
	if err := v.ValidateSharedSecret(cfg.Gateway.SharedSecret); err != nil {
		errors = append(errors, fmt.Errorf("gateway: %w", err))
	}
	if cfg.Gateway.RequestsPerMinute < 0 || cfg.Gateway.MaxConcurrent < 0 {
		errors = append(errors, fmt.Errorf("gateway rate limits must be >= 0"))
	}

	if err := v.ValidateBridgeURL(cfg.Bridge.URL); err != nil {
		errors = append(errors, err)
	}

	s := cfg.Session
	for name, val := range map[string]int{
		"connect_timeout":       s.ConnectTimeout,
		"start_timeout":         s.StartTimeout,
		"max_reconnects":        s.MaxReconnects,
		"kick_delay":            s.KickDelay,
		"disconnect_delay":      s.DisconnectDelay,
		"log_capacity":          s.LogCapacity,
		"position_log_interval": s.PositionLogInterval,
	} {
		if val < 0 {
			errors = append(errors, fmt.Errorf("session.%s must be >= 0", name))
		}
	}

	if cfg.Safety.Enabled && cfg.Safety.Interval > 0 && cfg.Safety.IdleThreshold > 0 &&
		cfg.Safety.IdleThreshold < cfg.Safety.Interval {
		errors = append(errors, fmt.Errorf("safety.idle_threshold must not be shorter than safety.interval"))
	}

	if cfg.History.Enabled {
		if cfg.History.PruneSchedule != "" {
			if err := history.ValidateSchedule(cfg.History.PruneSchedule); err != nil {
				errors = append(errors, fmt.Errorf("history.prune_schedule: %w", err))
			}
		}
		if cfg.History.RetentionDays < 0 {
			errors = append(errors, fmt.Errorf("history.retention_days must be >= 0"))
		}
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	return errors
}
