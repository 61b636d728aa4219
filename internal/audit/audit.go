// Package audit records every state-changing control API call as a JSON line.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/afkd/internal/logger"
	"github.com/harun/afkd/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FileName is the audit log created in the data directory
const FileName = "audit.log"

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is one audit record
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor,omitempty"` // remote address of the caller
	Action    string         `json:"action"`          // bot.start, bot.stop, bot.command
	Identity  string         `json:"identity,omitempty"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
}

// Logger appends audit events to a file. A nil *Logger discards events.
type Logger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

// New opens (or creates) the audit log at path. With redact set, login
// passwords and secrets in command text are masked before they hit disk.
func New(path string, redact bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	var w io.Writer = file
	if redact {
		w = logger.NewRedactor().Wrap(file)
	}

	return &Logger{
		logger: zerolog.New(w),
		file:   file,
	}, nil
}

// Record writes event, filling the timestamp and the request and trace IDs
// from ctx. The event is also attached to the active span, if any.
func (a *Logger) Record(ctx context.Context, event Event) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = tracing.GetRequestID(ctx)
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.identity", event.Identity),
			attribute.String("audit.status", event.Status),
		))
	} else if event.TraceID == "" {
		event.TraceID = tracing.GetTraceID(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", event.Timestamp).
		Str("action", event.Action).
		Str("status", event.Status)
	if event.Actor != "" {
		entry = entry.Str("actor", event.Actor)
	}
	if event.Identity != "" {
		entry = entry.Str("identity", event.Identity)
	}
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	if event.RequestID != "" {
		entry = entry.Str("request_id", event.RequestID)
	}
	if event.TraceID != "" {
		entry = entry.Str("trace_id", event.TraceID)
	}
	if len(event.Metadata) > 0 {
		entry = entry.Interface("metadata", event.Metadata)
	}
	entry.Send()
}

// RecordResult records action on identity as a success or, when err is
// non-nil, a failure carrying the error text.
func (a *Logger) RecordResult(ctx context.Context, actor, action, identity string, err error, metadata map[string]any) {
	event := Event{
		Actor:    actor,
		Action:   action,
		Identity: identity,
		Status:   StatusSuccess,
		Metadata: metadata,
	}
	if err != nil {
		event.Status = StatusFailure
		event.Error = err.Error()
	}
	a.Record(ctx, event)
}

// Close closes the audit file
func (a *Logger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
