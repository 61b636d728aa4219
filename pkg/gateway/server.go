package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harun/afkd/internal/audit"
	"github.com/harun/afkd/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultRequestsPerMinute = 120
	DefaultMaxConcurrent     = 10
	maxBodyBytes             = 64 << 10
)

// Server is the HTTP control surface for bot sessions
type Server struct {
	host           string
	port           int
	server         *http.Server
	listener       net.Listener
	handler        http.Handler
	sessions       Sessions
	history        History
	metrics        *metrics.Metrics
	audit          *audit.Logger
	authHandler    *AuthHandler
	limiters       *limiterSet
	schemas        *requestSchemas
	logger         zerolog.Logger
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds the gateway's dependencies
type Config struct {
	Host              string
	Port              int
	SharedSecret      string
	RequestsPerMinute int
	MaxConcurrent     int
	Sessions          Sessions
	History           History
	Metrics           *metrics.Metrics
	Audit             *audit.Logger
	Logger            zerolog.Logger
}

// NewServer creates a gateway server. History, Metrics and Audit are optional.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	s := &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		sessions:    cfg.Sessions,
		history:     cfg.History,
		metrics:     cfg.Metrics,
		audit:       cfg.Audit,
		authHandler: NewAuthHandler(cfg.SharedSecret),
		limiters:    newLimiterSet(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		schemas:     schemas,
		logger:      cfg.Logger.With().Str("component", "gateway").Logger(),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.trackInFlight)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/bots", func(api chi.Router) {
		api.Use(s.authHandler.Middleware)
		api.Use(s.rateLimit)

		api.Post("/start", s.handleStart)
		api.Post("/stop", s.handleStop)
		api.Post("/command", s.handleCommand)
		api.Get("/status", s.handleStatus)
		api.Get("/", s.handleList)
		api.Get("/history", s.handleHistory)
	})

	return r
}

// Start begins listening. It returns once the listener is bound.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Addr returns the bound listen address, or "" before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones to finish
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout, some requests may be incomplete")
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
