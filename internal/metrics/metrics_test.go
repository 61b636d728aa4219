package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harun/afkd/pkg/kick"
	"github.com/harun/afkd/pkg/reconnect"
	"github.com/harun/afkd/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.registry == nil {
		t.Error("Registry is nil")
	}
	if m.SessionsActive == nil || m.SessionTransitions == nil || m.KicksTotal == nil {
		t.Error("Session metrics not initialized")
	}
	if m.HTTPRequestsTotal == nil || m.HTTPRequestDuration == nil {
		t.Error("Gateway metrics not initialized")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted()
	m.Transition(session.StateOnline)
	m.ReconnectScheduled(reconnect.CauseKick)
	m.Kicked(kick.ServerFull)
	m.SafetyAction(session.ActionJump)
	m.CommandSent()
	m.StartDuration(time.Second, true)
	m.RunArchived(session.StateDisconnected)
	m.RunsPruned(2)
	m.ObserveRequest("/api/bots/start", http.MethodPost, http.StatusOK, 10*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"afk_sessions_active",
		"afk_sessions_started_total",
		"afk_session_transitions_total",
		"afk_reconnect_attempts_total",
		"afk_kicks_total",
		"afk_safety_actions_total",
		"afk_commands_sent_total",
		"afk_session_start_duration_seconds",
		"afk_runs_archived_total",
		"afk_runs_pruned_total",
		"afk_http_requests_total",
		"afk_http_request_duration_seconds",
		"go_goroutines",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}

func TestSessionMetrics(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	if got := value(t, m.SessionsActive); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
	if got := value(t, m.SessionsStartedTotal); got != 2 {
		t.Errorf("Expected 2 started sessions, got %v", got)
	}

	m.Transition(session.StateReconnecting)
	m.Transition(session.StateReconnecting)
	if got := value(t, m.SessionTransitions.WithLabelValues("reconnecting")); got != 2 {
		t.Errorf("Expected 2 reconnecting transitions, got %v", got)
	}

	m.Kicked(kick.Banned)
	if got := value(t, m.KicksTotal.WithLabelValues("banned")); got != 1 {
		t.Errorf("Expected 1 banned kick, got %v", got)
	}
}

func TestRequestMetricsUseNumericCodes(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("/api/bots/status", http.MethodGet, http.StatusNotFound, time.Millisecond)

	if got := value(t, m.HTTPRequestsTotal.WithLabelValues("/api/bots/status", "GET", "404")); got != 1 {
		t.Errorf("Expected 1 request with code 404, got %v", got)
	}
}

func TestRunsPrunedIgnoresZero(t *testing.T) {
	m := NewMetrics()
	m.RunsPruned(0)
	m.RunsPruned(-1)

	if got := value(t, m.RunsPrunedTotal); got != 0 {
		t.Errorf("Expected no pruned runs, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.SessionStarted()
	m.SessionEnded()
	m.Transition(session.StateOnline)
	m.ReconnectScheduled(reconnect.CauseDisconnect)
	m.Kicked(kick.Unknown)
	m.SafetyAction(session.ActionSwingArm)
	m.CommandSent()
	m.StartDuration(time.Second, false)
	m.RunArchived(session.StateFailed)
	m.RunsPruned(3)
	m.ObserveRequest("/", http.MethodGet, http.StatusOK, time.Millisecond)
}

func TestMetricsIsolation(t *testing.T) {
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.CommandSent()

	if got := value(t, m2.CommandsSentTotal); got != 0 {
		t.Errorf("Expected isolated registries, got %v commands on second instance", got)
	}
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("Failed to read metric: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	return 0
}
