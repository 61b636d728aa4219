package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/afkd/internal/audit"
	"github.com/harun/afkd/internal/config"
	"github.com/harun/afkd/internal/logger"
	"github.com/harun/afkd/internal/metrics"
	"github.com/harun/afkd/internal/tracing"
	"github.com/harun/afkd/pkg/gameclient"
	"github.com/harun/afkd/pkg/gameclient/wsbridge"
	"github.com/harun/afkd/pkg/gateway"
	"github.com/harun/afkd/pkg/history"
	"github.com/harun/afkd/pkg/session"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

// Options overrides daemon collaborators, mainly for tests
type Options struct {
	// Dialer replaces the bridge dialer built from config
	Dialer gameclient.Dialer
	// ConfigPath enables hot reload of the given file when set
	ConfigPath string
	// MaintenanceInterval overrides the event loop tick
	MaintenanceInterval time.Duration
}

// Daemon wires the session registry to its transports and storage
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	log    zerolog.Logger

	metrics       *metrics.Metrics
	audit         *audit.Logger
	registry      *session.Registry
	history       *history.Store
	pruner        *history.Pruner
	gatewayServer *gateway.Server
	watcher       *config.Watcher

	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status is a point-in-time view of the daemon
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
	Sessions  int
}

// New builds a daemon from cfg. Nothing is started until Start.
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config: cfg,
		logger: log,
		log:    log.With().Str("component", "daemon").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
		} else {
			d.tracingEnabled = true
			d.log.Info().Float64("sample_ratio", cfg.Tracing.SampleRatio).Msg("Tracing initialized")
		}
	}

	if err := d.initialize(opts); err != nil {
		d.closeResources()
		cancel()
		return nil, err
	}

	d.eventLoop = NewEventLoop(d, opts.MaintenanceInterval)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) initialize(opts Options) error {
	base := d.logger.GetZerolog()

	if d.config.Metrics.Enabled {
		d.metrics = metrics.NewMetrics()
	}

	dialer := opts.Dialer
	if dialer == nil {
		bridge, err := wsbridge.NewDialer(wsbridge.Config{
			URL:              d.config.Bridge.URL,
			Secret:           d.config.Bridge.Secret,
			HandshakeTimeout: d.config.HandshakeTimeout(),
			Logger:           base,
		})
		if err != nil {
			return fmt.Errorf("failed to create bridge dialer: %w", err)
		}
		dialer = bridge
	}

	var archiver session.Archiver
	if d.config.History.Enabled {
		store, err := history.Open(history.Config{
			Path:     d.config.History.Path,
			Logger:   base,
			Observer: d.metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		d.history = store
		archiver = store

		pruner, err := history.NewPruner(store, d.config.History.PruneSchedule, d.config.Retention(), base)
		if err != nil {
			return fmt.Errorf("failed to create history pruner: %w", err)
		}
		d.pruner = pruner
		d.log.Info().Str("path", d.config.History.Path).Msg("Run history initialized")
	}

	if d.config.Audit.Enabled {
		auditLog, err := audit.New(d.config.Audit.Path, d.config.Logging.Redaction)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		d.audit = auditLog
	}

	registry, err := session.NewRegistry(session.RegistryOptions{
		Dialer:   dialer,
		Config:   d.config.ToSessionConfig(),
		Logger:   &base,
		Recorder: d.metrics,
		Archiver: archiver,
	})
	if err != nil {
		return fmt.Errorf("failed to create session registry: %w", err)
	}
	d.registry = registry

	gwCfg := gateway.Config{
		Host:              d.config.Gateway.Host,
		Port:              d.config.Gateway.Port,
		SharedSecret:      d.config.Gateway.SharedSecret,
		RequestsPerMinute: d.config.Gateway.RequestsPerMinute,
		MaxConcurrent:     d.config.Gateway.MaxConcurrent,
		Sessions:          registry,
		Metrics:           d.metrics,
		Audit:             d.audit,
		Logger:            base,
	}
	if d.history != nil {
		gwCfg.History = d.history
	}
	gw, err := gateway.NewServer(gwCfg)
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	d.gatewayServer = gw

	if opts.ConfigPath != "" {
		watcher, err := config.NewWatcher(config.NewLoader(opts.ConfigPath), base)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		watcher.Subscribe(d.applyConfig)
		d.watcher = watcher
	}

	return nil
}

// Start writes the PID file and starts every service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting afkd daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.gatewayServer.Start(); err != nil {
		_ = d.lifecycle.Stop()
		d.setStopped()
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	logger.Info().Str("addr", d.gatewayServer.Addr()).Msg("Gateway server started")

	if d.pruner != nil {
		if err := d.pruner.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start history pruner")
		} else {
			logger.Info().Msg("History pruner started")
		}
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start config watcher, hot reload disabled")
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Msg("Daemon started")
	return nil
}

// Stop shuts services down in reverse order. Sessions are stopped after the
// gateway so no new ones can be started meanwhile.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping afkd daemon")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if err := d.gatewayServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
		errs = append(errs, err)
	}

	if err := d.registry.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop all sessions")
		errs = append(errs, err)
	}
	logger.Info().Msg("Sessions stopped")

	if d.pruner != nil {
		if err := d.pruner.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop history pruner")
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.closeResources()

	logger.Info().Msg("Daemon stopped")
	return errors.Join(errs...)
}

func (d *Daemon) closeResources() {
	if d.audit != nil {
		if err := d.audit.Close(); err != nil {
			d.log.Error().Err(err).Msg("Failed to close audit log")
		}
		d.audit = nil
	}

	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.log.Error().Err(err).Msg("Failed to close run history")
		}
		d.history = nil
	}

	if d.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			d.log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// applyConfig applies the settings that can change without a restart
func (d *Daemon) applyConfig(cfg *config.Config) {
	if err := d.logger.SetLevel(cfg.Logging.Level); err != nil {
		d.log.Warn().Err(err).Msg("Ignoring reloaded log level")
	}

	if cfg.Gateway != d.config.Gateway || cfg.Bridge != d.config.Bridge ||
		cfg.Session != d.config.Session || cfg.Safety != d.config.Safety || cfg.History != d.config.History ||
		cfg.Audit != d.config.Audit {
		d.log.Warn().Msg("Config changes other than logging.level take effect after restart")
	}
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Sessions: d.registry.Len(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Run starts the daemon and blocks until ctx is cancelled or SIGINT/SIGTERM
// arrives, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	d.log.Info().Msg("Shutdown requested")

	return d.Stop()
}

// Registry returns the session registry
func (d *Daemon) Registry() *session.Registry {
	return d.registry
}

// Gateway returns the control API server
func (d *Daemon) Gateway() *gateway.Server {
	return d.gatewayServer
}

// PIDFile returns the PID file path
func (d *Daemon) PIDFile() string {
	return d.lifecycle.PIDFile()
}
