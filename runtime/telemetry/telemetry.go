// Package telemetry defines the logging, metrics, and tracing capability
// interfaces used throughout the orchestration runtime. Every component takes
// a Logger/Metrics/Tracer at construction time instead of reaching for a
// package-level logger, so there are no process-wide mutable singletons.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log lines scoped to the caller's context. Keyvals
	// are alternating key/value pairs (k1, v1, k2, v2, ...); odd trailing keys
	// are paired with nil.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges. Tags are alternating
	// key/value string pairs used as metric dimensions.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer creates and retrieves trace spans.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span is a single unit of tracing work.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}

	// Set bundles the three telemetry capabilities so components can be
	// constructed with a single argument instead of three.
	Set struct {
		Logger  Logger
		Metrics Metrics
		Tracer  Tracer
	}
)

// Noop returns a Set whose Logger/Metrics/Tracer discard everything. Used by
// tests and by components instantiated without an explicit telemetry set.
func Noop() Set {
	return Set{Logger: NewNoopLogger(), Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}
}
