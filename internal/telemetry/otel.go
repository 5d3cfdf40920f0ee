package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// NewOtel builds a Sink backed by the global OpenTelemetry tracer/meter
// providers, used in place of NewDefault whenever
// OTEL_EXPORTER_OTLP_ENDPOINT is configured. Callers are responsible for
// having installed a TracerProvider/MeterProvider that export to that
// endpoint (e.g. via the otlp exporter's own env-driven autoconfigure);
// this package only looks up named instruments against whatever provider
// is globally registered.
func NewOtel(base *slog.Logger, instrumentationName string) *Sink {
	return &Sink{
		Logger:  NewSlogLogger(base),
		Tracer:  NewOtelTracer(instrumentationName),
		Metrics: NewOtelMetrics(instrumentationName),
	}
}

// otelTracer adapts an OpenTelemetry tracer to the Tracer interface,
// grounded on goa-ai's telemetry.ClueTracer package-level
// otel.Tracer(...) construction.
type otelTracer struct {
	tr trace.Tracer
}

// NewOtelTracer wires a named OpenTelemetry tracer as the Sink's Tracer.
// It uses whatever TracerProvider is globally registered; cmd/agentproto
// installs none, so otel's default no-op provider applies unless the
// embedding program registers one.
func NewOtelTracer(instrumentationName string) Tracer {
	return &otelTracer{tr: otel.Tracer(instrumentationName)}
}

func (t *otelTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tr.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(1, err.Error()) // codes.Error
}

func (s *otelSpan) SetAttributes(kv ...any) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		attrs = append(attrs, attribute.String(key, toString(kv[i+1])))
	}
	s.span.SetAttributes(attrs...)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return ""
	}
}

// otelMetrics adapts an OpenTelemetry Meter to the Metrics interface.
type otelMetrics struct {
	meter    metric.Meter
	mu       sync.Mutex
	counters map[string]metric.Int64Counter
}

func NewOtelMetrics(instrumentationName string) Metrics {
	return &otelMetrics{
		meter:    otel.Meter(instrumentationName),
		counters: make(map[string]metric.Int64Counter),
	}
}

func (m *otelMetrics) IncCounter(name string, _ ...any) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Int64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = c
	}
	m.mu.Unlock()
	c.Add(context.Background(), 1)
}

func (m *otelMetrics) RecordDuration(name string, seconds float64, _ ...any) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), seconds)
}
