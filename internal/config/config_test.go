package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8420, cfg.Gateway.Port)
	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
	assert.Equal(t, 20, cfg.Session.ConnectTimeout)
	assert.Equal(t, 5, cfg.Session.MaxReconnects)
	assert.Equal(t, 10, cfg.Session.KickDelay)
	assert.Equal(t, 15, cfg.Session.DisconnectDelay)
	assert.True(t, cfg.Safety.Enabled)
	assert.Equal(t, 30, cfg.Safety.Interval)
	assert.Equal(t, 300, cfg.Safety.IdleThreshold)
	assert.Equal(t, 500, cfg.Safety.PulseMs)
	assert.True(t, cfg.History.Enabled)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 30, cfg.History.RetentionDays)
	assert.False(t, cfg.Tracing.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port out of range", func(c *Config) { c.Gateway.Port = 0 }, "port must be between"},
		{"http bridge", func(c *Config) { c.Bridge.URL = "http://localhost:1/bridge" }, "ws or wss"},
		{"missing bridge", func(c *Config) { c.Bridge.URL = "" }, "bridge url cannot be empty"},
		{"negative reconnects", func(c *Config) { c.Session.MaxReconnects = -1 }, "session.max_reconnects"},
		{"bad schedule", func(c *Config) { c.History.PruneSchedule = "every hour" }, "prune_schedule"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gateway.Port = -1
		cfg.Logging.Level = "loud"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "port")
		assert.Contains(t, err.Error(), "log level")
	})

	t.Run("disabled history skips schedule", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.History.Enabled = false
		cfg.History.PruneSchedule = "nonsense"
		assert.NoError(t, cfg.Validate())
	})
}

func TestToSessionConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.ConnectTimeout = 7
	cfg.Session.StartTimeout = 0
	cfg.Session.KickDelay = 3
	cfg.Safety.Enabled = false
	cfg.Safety.PulseMs = 250

	sc := cfg.ToSessionConfig()
	assert.Equal(t, 7*time.Second, sc.ConnectTimeout)
	assert.Equal(t, 7*time.Second, sc.StartTimeout)
	assert.Equal(t, 3*time.Second, sc.Policy.KickDelay)
	assert.Equal(t, 15*time.Second, sc.Policy.DisconnectDelay)
	assert.Equal(t, 5, sc.Policy.MaxAttempts)
	assert.Equal(t, 50, sc.LogCapacity)
	assert.True(t, sc.Safety.Disabled)
	assert.Equal(t, 250*time.Millisecond, sc.Safety.Pulse)
}

func TestConfigDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout())
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, `"gateway"`)
	assert.Contains(t, s, `"prune_schedule": "17 * * * *"`)
}
