package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// NewSessionContext returns a context detached from parent cancellation for a
// long-lived session run. The trace ID of parent is kept so the run can be
// correlated with the request that started it.
func NewSessionContext(parent context.Context, identity, runID string) context.Context {
	traceID := GetTraceID(parent)
	if traceID == "" {
		traceID = NewTraceID()
	}

	ctx := WithTraceID(context.Background(), traceID)
	ctx = WithIdentity(ctx, identity)
	if runID == "" {
		runID = NewRunID()
	}
	return WithRunID(ctx, runID)
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RunID != "" {
		logger = logger.With().Str("run_id", tc.RunID).Logger()
	}
	if tc.Identity != "" {
		logger = logger.With().Str("identity", tc.Identity).Logger()
	}
	if tc.RequestID != "" {
		logger = logger.With().Str("request_id", tc.RequestID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing values from source into target where target
// has none.
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.RunID != "" && GetRunID(target) == "" {
		target = WithRunID(target, tc.RunID)
	}
	if tc.Identity != "" && GetIdentity(target) == "" {
		target = WithIdentity(target, tc.Identity)
	}
	if tc.RequestID != "" && GetRequestID(target) == "" {
		target = WithRequestID(target, tc.RequestID)
	}

	return target
}
