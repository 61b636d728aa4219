package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/harun/afkd/internal/config"
	"github.com/harun/afkd/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "", "status", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "PID and uptime")
	})

	t.Run("stopped", func(t *testing.T) {
		path := writeConfig(t, config.DefaultConfig())
		output, err := executeCommand(t, "", "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "Status: stopped")
	})

	t.Run("running", func(t *testing.T) {
		cfg := config.DefaultConfig()
		path := writeConfig(t, cfg)
		pidFile := daemon.PIDFilePath(filepath.Dir(path))
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644))

		output, err := executeCommand(t, "", "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "Status: running")
		assert.Contains(t, output, "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, output, "Uptime:")
	})

	t.Run("stale pid file", func(t *testing.T) {
		path := writeConfig(t, config.DefaultConfig())
		pidFile := daemon.PIDFilePath(filepath.Dir(path))
		require.NoError(t, os.WriteFile(pidFile, []byte("99999999"), 0o644))

		output, err := executeCommand(t, "", "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "Status: stopped")
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"rounds", 1500 * time.Millisecond, "2s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}
