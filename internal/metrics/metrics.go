package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/harun/afkd/pkg/kick"
	"github.com/harun/afkd/pkg/reconnect"
	"github.com/harun/afkd/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "afk"

// Metrics holds all Prometheus metrics for the daemon. All recording methods
// are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive       prometheus.Gauge
	SessionsStartedTotal prometheus.Counter
	SessionTransitions   *prometheus.CounterVec
	ReconnectAttempts    *prometheus.CounterVec
	KicksTotal           *prometheus.CounterVec
	SafetyActionsTotal   *prometheus.CounterVec
	CommandsSentTotal    prometheus.Counter
	SessionStartDuration *prometheus.HistogramVec
	RunsArchivedTotal    *prometheus.CounterVec
	RunsPrunedTotal      prometheus.Counter

	// Gateway metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var _ session.Recorder = (*Metrics)(nil)

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of sessions currently running",
			},
		),
		SessionsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of sessions started",
			},
		),
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Total number of session state transitions by target state",
			},
			[]string{"state"},
		),
		ReconnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnect_attempts_total",
				Help:      "Total number of scheduled reconnects by cause",
			},
			[]string{"cause"},
		),
		KicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kicks_total",
				Help:      "Total number of kicks by classification",
			},
			[]string{"classification"},
		),
		SafetyActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "safety_actions_total",
				Help:      "Total number of anti-idle actions performed",
			},
			[]string{"action"},
		),
		CommandsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_sent_total",
				Help:      "Total number of chat commands sent",
			},
		),
		SessionStartDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_start_duration_seconds",
				Help:      "Time from start request to Online or failure",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"outcome"},
		),
		RunsArchivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_archived_total",
				Help:      "Total number of ended runs written to the history store",
			},
			[]string{"state"},
		),
		RunsPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_pruned_total",
				Help:      "Total number of archived runs removed by retention",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of control API requests",
			},
			[]string{"route", "method", "code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of control API requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Session metrics
	m.registry.MustRegister(m.SessionsActive)
	m.registry.MustRegister(m.SessionsStartedTotal)
	m.registry.MustRegister(m.SessionTransitions)
	m.registry.MustRegister(m.ReconnectAttempts)
	m.registry.MustRegister(m.KicksTotal)
	m.registry.MustRegister(m.SafetyActionsTotal)
	m.registry.MustRegister(m.CommandsSentTotal)
	m.registry.MustRegister(m.SessionStartDuration)
	m.registry.MustRegister(m.RunsArchivedTotal)
	m.registry.MustRegister(m.RunsPrunedTotal)

	// Gateway metrics
	m.registry.MustRegister(m.HTTPRequestsTotal)
	m.registry.MustRegister(m.HTTPRequestDuration)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SessionStarted implements session.Recorder
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStartedTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionEnded implements session.Recorder
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// Transition implements session.Recorder
func (m *Metrics) Transition(state session.State) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(string(state)).Inc()
}

// ReconnectScheduled implements session.Recorder
func (m *Metrics) ReconnectScheduled(cause reconnect.Cause) {
	if m == nil {
		return
	}
	m.ReconnectAttempts.WithLabelValues(string(cause)).Inc()
}

// Kicked implements session.Recorder
func (m *Metrics) Kicked(classification kick.Classification) {
	if m == nil {
		return
	}
	m.KicksTotal.WithLabelValues(string(classification)).Inc()
}

// SafetyAction implements session.Recorder
func (m *Metrics) SafetyAction(action session.Action) {
	if m == nil {
		return
	}
	m.SafetyActionsTotal.WithLabelValues(string(action)).Inc()
}

// CommandSent implements session.Recorder
func (m *Metrics) CommandSent() {
	if m == nil {
		return
	}
	m.CommandsSentTotal.Inc()
}

// StartDuration implements session.Recorder
func (m *Metrics) StartDuration(d time.Duration, online bool) {
	if m == nil {
		return
	}
	outcome := "online"
	if !online {
		outcome = "failed"
	}
	m.SessionStartDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RunArchived counts a run written to the history store
func (m *Metrics) RunArchived(state session.State) {
	if m == nil {
		return
	}
	m.RunsArchivedTotal.WithLabelValues(string(state)).Inc()
}

// RunsPruned counts runs removed by retention
func (m *Metrics) RunsPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RunsPrunedTotal.Add(float64(n))
}

// ObserveRequest records one control API request
func (m *Metrics) ObserveRequest(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
