package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NoError(t, logger.Close())
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "afkd.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		logger.Info().Str("identity", "alice").Msg("session started")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"identity":"alice"`)
		assert.Contains(t, string(data), "session started")
	})

	t.Run("redaction", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "afkd.log")

		logger, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)
		assert.NotNil(t, logger.redactor)

		logger.Info().Str("command", "/login hunter2").Msg("sending command")
		log.Info().Str("header", "Bearer abcdef123456").Msg("global logger")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "hunter2")
		assert.NotContains(t, string(data), "abcdef123456")
		assert.Equal(t, 2, strings.Count(string(data), "[REDACTED]"))
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "loud"})
		require.NoError(t, err)
		defer logger.Close()
		assert.Equal(t, zerolog.InfoLevel, logger.Level())
	})
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	logFile := filepath.Join(t.TempDir(), "afkd.log")
	logger, err := New(Config{Level: "info", File: logFile})
	require.NoError(t, err)
	child := logger.With().Str("component", "session").Logger()

	child.Debug().Msg("hidden")
	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, zerolog.DebugLevel, logger.Level())
	child.Debug().Msg("visible")

	assert.Error(t, logger.SetLevel("chatty"))
	assert.Equal(t, zerolog.DebugLevel, logger.Level())
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
	assert.Contains(t, string(data), "Log level changed")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}

func TestGetZerolog(t *testing.T) {
	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	defer logger.Close()
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	zl := logger.GetZerolog()
	assert.Equal(t, zerolog.WarnLevel, logger.Level())
	assert.Nil(t, zl.Info())
	assert.NotNil(t, zl.Error())
}
