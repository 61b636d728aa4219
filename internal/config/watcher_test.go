package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "afkd.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "info"}}`), 0o600))

	w, err := NewWatcher(NewLoader(configPath), zerolog.Nop())
	require.NoError(t, err)
	w.stabilityThreshold = 20 * time.Millisecond

	var level atomic.Value
	w.Subscribe(func(cfg *Config) { level.Store(cfg.Logging.Level) })
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "debug"}}`), 0o600))

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "afkd.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o600))

	w, err := NewWatcher(NewLoader(configPath), zerolog.Nop())
	require.NoError(t, err)
	w.stabilityThreshold = 20 * time.Millisecond

	var calls atomic.Int32
	w.Subscribe(func(*Config) { calls.Add(1) })
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "shouting"}}`), 0o600))
	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "other.json"), []byte(`{}`), 0o600))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(NewLoader(filepath.Join(t.TempDir(), "afkd.json")), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	assert.NotPanics(t, func() { _ = w.Stop() })
}
