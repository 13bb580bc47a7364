// Package telemetry defines the logging, metrics, and tracing interfaces
// consumed throughout runtime/*. It mirrors the shape of the prior codebase's own
// runtime telemetry package — Logger/Metrics/Tracer/Span are already
// domain-agnostic there, so they carry over with no change beyond the
// package name.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime.
// Implementations are intentionally small so tests can supply lightweight
// stubs without pulling in a real logging backend.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for runtime
// instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// CallTelemetry captures observability metadata collected around a single
// LLM or tool invocation. Extra holds call-specific metadata not captured
// by the common fields (provider response headers, cache keys, and so on).
type CallTelemetry struct {
	DurationMs int64
	TokensUsed int
	Model string
	Extra map[string]any
}
