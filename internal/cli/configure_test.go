package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/afkd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "", "configure", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "interactive configuration wizard")
	})

	t.Run("writes new config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afkd.json")
		answers := strings.Join([]string{
			"wss://bridge.example.net/bridge",
			"",
			"9000",
			"-",
			"debug",
		}, "\n") + "\n"

		output, err := executeCommand(t, answers, "configure", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "Configuration saved to: "+path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "wss://bridge.example.net/bridge", cfg.Bridge.URL)
		assert.Equal(t, 9000, cfg.Gateway.Port)
		assert.Empty(t, cfg.Gateway.SharedSecret)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("keeps existing values", func(t *testing.T) {
		existing := config.DefaultConfig()
		existing.Gateway.Port = 9300
		existing.Gateway.SharedSecret = "an-existing-secret-value"
		path := writeConfig(t, existing)

		answers := "\n\n\nkeep-this-secret-please\n\n"
		_, err := executeCommand(t, answers, "configure", "--config", path)
		require.NoError(t, err)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9300, cfg.Gateway.Port)
		assert.Equal(t, "keep-this-secret-please", cfg.Gateway.SharedSecret)
	})
}
