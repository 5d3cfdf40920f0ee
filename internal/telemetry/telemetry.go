// Package telemetry defines the observability sink interfaces the core
// depends on. Spec treats traces/metrics exporters as an external
// collaborator; this package is the named interface plus a slog-backed
// default and an optional OpenTelemetry-backed implementation, following
// the Logger/Tracer/Metrics split in goa-ai's runtime/agent/telemetry
// package.
package telemetry

import (
	"context"
	"log/slog"
)

// Logger is the structured-logging sink every component writes through
// instead of calling slog package-level functions directly, so tests can
// swap in a capturing implementation.
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}

// Span is a started trace span; call End when the traced operation
// finishes.
type Span interface {
	End()
	SetError(err error)
	SetAttributes(kv ...any)
}

// Tracer starts spans around suspension points worth tracing; tool
// invocation in the executor is the one place that starts a span.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Metrics records counters/histograms for the handful of domain events the
// core cares about. Implementations decide export mechanics.
type Metrics interface {
	IncCounter(name string, attrs ...any)
	RecordDuration(name string, seconds float64, attrs ...any)
}

// Sink bundles the three independent concerns behind one injectable value.
type Sink struct {
	Logger  Logger
	Tracer  Tracer
	Metrics Metrics
}

// slogLogger is the default Logger, following the teacher's main.go
// slog.New(slog.NewJSONHandler(...)) setup.
type slogLogger struct {
	base *slog.Logger
}

func NewSlogLogger(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &slogLogger{base: base}
}

func (l *slogLogger) Info(ctx context.Context, msg string, args ...any) {
	l.base.InfoContext(ctx, msg, args...)
}
func (l *slogLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.base.WarnContext(ctx, msg, args...)
}
func (l *slogLogger) Error(ctx context.Context, msg string, args ...any) {
	l.base.ErrorContext(ctx, msg, args...)
}
func (l *slogLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.base.DebugContext(ctx, msg, args...)
}

// NewDefault builds a Sink with a JSON slog logger and noop tracer/metrics,
// the configuration used whenever OTEL_EXPORTER_OTLP_ENDPOINT is unset.
func NewDefault(base *slog.Logger) *Sink {
	return &Sink{
		Logger:  NewSlogLogger(base),
		Tracer:  noopTracer{},
		Metrics: noopMetrics{},
	}
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                    {}
func (noopSpan) SetError(error)          {}
func (noopSpan) SetAttributes(...any)    {}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, ...any)            {}
func (noopMetrics) RecordDuration(string, float64, ...any) {}
