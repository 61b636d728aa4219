package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewSessionContextKeepsTraceID(t *testing.T) {
	parent, cancel := context.WithCancel(WithTraceID(context.Background(), "trace-123"))

	ctx := NewSessionContext(parent, "alice", "run-1")
	cancel()

	if GetTraceID(ctx) != "trace-123" {
		t.Error("Trace ID not propagated")
	}
	if GetIdentity(ctx) != "alice" {
		t.Error("Identity not set")
	}
	if GetRunID(ctx) != "run-1" {
		t.Error("Run ID not set")
	}

	select {
	case <-ctx.Done():
		t.Error("Session context should not inherit parent cancellation")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestNewSessionContextGeneratesIDs(t *testing.T) {
	ctx := NewSessionContext(context.Background(), "alice", "")

	if GetTraceID(ctx) == "" {
		t.Error("Trace ID not generated when missing")
	}
	if GetRunID(ctx) == "" {
		t.Error("Run ID not generated when missing")
	}
}

func TestPropagateToLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-9")
	ctx = WithIdentity(ctx, "dave")
	ctx = WithRequestID(ctx, "req-9")

	logger := PropagateToLogger(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-9"`, `"identity":"dave"`, `"request_id":"req-9"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in log output: %s", want, out)
		}
	}
	if strings.Contains(out, "run_id") {
		t.Errorf("run_id should be omitted when empty: %s", out)
	}
}

func TestMergeContext(t *testing.T) {
	target := WithIdentity(context.Background(), "target")
	source := WithTraceID(context.Background(), "trace-src")
	source = WithIdentity(source, "source")

	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-src" {
		t.Error("Trace ID not merged")
	}
	if GetIdentity(merged) != "target" {
		t.Error("Existing identity should not be overwritten")
	}
}
