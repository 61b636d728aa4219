package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc receives each successfully reloaded config
type ReloadFunc func(cfg *Config)

// Watcher reloads the config file when it changes on disk
type Watcher struct {
	loader             *Loader
	path               string
	watcher            *fsnotify.Watcher
	stabilityThreshold time.Duration
	logger             zerolog.Logger

	mu          sync.Mutex
	subscribers []ReloadFunc
	debounce    *time.Timer

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the loader's config file. The parent
// directory is watched so editors that replace the file are picked up.
func NewWatcher(loader *Loader, logger zerolog.Logger) (*Watcher, error) {
	path := loader.GetConfigPath()
	if path == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		loader:             loader,
		path:               filepath.Clean(path),
		watcher:            fw,
		stabilityThreshold: 200 * time.Millisecond,
		logger:             logger.With().Str("component", "config_watcher").Logger(),
		done:               make(chan struct{}),
	}, nil
}

// Subscribe registers fn for future reloads
func (w *Watcher) Subscribe(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Start begins watching
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Config watcher started")
	return nil
}

// Stop stops watching and cancels any pending reload
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watcher error")

		case <-w.done:
			return
		}
	}
}

// scheduleReload debounces bursts of writes into a single reload
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.reload()
	})
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to reload config, keeping previous")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn().Err(err).Msg("Reloaded config is invalid, keeping previous")
		return
	}

	w.mu.Lock()
	subs := make([]ReloadFunc, len(w.subscribers))
	copy(subs, w.subscribers)
	w.mu.Unlock()

	w.logger.Info().Str("path", w.path).Msg("Config reloaded")
	for _, fn := range subs {
		fn(cfg)
	}
}
