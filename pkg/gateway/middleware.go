package gateway

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/afkd/internal/tracing"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RequestIDHeader carries the per-request ID in both directions
const RequestIDHeader = "X-Request-ID"

// requestID reuses a client supplied ID or mints a nanoid, and stores it in
// the request context with a fresh trace ID.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			generated, err := gonanoid.New()
			if err != nil {
				generated = tracing.NewTraceID()
			}
			id = generated
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := tracing.NewRequestContext(r.Context())
		ctx = tracing.WithRequestID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) trackInFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Error: "server is shutting down"})
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		next.ServeHTTP(w, r)
	})
}

// observe wraps each request in a span, logs it and records it in the HTTP
// metrics
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracing.StartSpan(r.Context(), tracing.TracerGateway, "gateway.request",
			attribute.String("http.method", r.Method),
		)
		defer span.End()
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", code))
		if code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(code))
		}
		s.metrics.ObserveRequest(route, r.Method, code, elapsed)

		logger := tracing.LoggerFromContext(r.Context(), s.logger)
		event := logger.Debug()
		if code >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("route", route).
			Int("status", code).
			Dur("duration", elapsed).
			Msg("Handled request")
	})
}

// rateLimit applies the per-client sliding window, keyed by remote host
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := s.limiters.get(clientHost(r))
		ok, reason := limiter.Acquire()
		if !ok {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, Response{Success: false, Error: reason})
			return
		}
		defer limiter.Release()

		next.ServeHTTP(w, r)
	})
}

// clientHost returns the caller's address without the port
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
