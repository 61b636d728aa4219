package cli

import (
	"testing"

	"github.com/harun/afkd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigCommand(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.Port = 9200
	cfg.Gateway.SharedSecret = "super-secret-shared-value"
	path := writeConfig(t, cfg)

	t.Run("masks secrets", func(t *testing.T) {
		output, err := executeCommand(t, "", "config", "--config", path)
		require.NoError(t, err)
		assert.NotContains(t, output, "super-secret-shared-value")
		assert.Contains(t, output, redacted)

		var printed config.Config
		require.NoError(t, yaml.Unmarshal([]byte(output), &printed))
		assert.Equal(t, 9200, printed.Gateway.Port)
		assert.Equal(t, cfg.Bridge.URL, printed.Bridge.URL)
	})

	t.Run("show secrets", func(t *testing.T) {
		output, err := executeCommand(t, "", "config", "--config", path, "--show-secrets")
		require.NoError(t, err)
		assert.Contains(t, output, "super-secret-shared-value")
	})

	t.Run("log level flag", func(t *testing.T) {
		output, err := executeCommand(t, "", "config", "--config", path, "--log-level", "warn")
		require.NoError(t, err)

		var printed config.Config
		require.NoError(t, yaml.Unmarshal([]byte(output), &printed))
		assert.Equal(t, "warn", printed.Logging.Level)
	})
}
