package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// attrsFromTags turns the "key", "value", "key", "value", ... tag
// convention used by the Metrics interface into OTel attributes; a trailing
// unpaired tag is kept under the key "tag_<index>".
func attrsFromTags(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	if len(tags)%2 == 1 {
		attrs = append(attrs, attribute.String("tag_"+strconv.Itoa(len(tags)-1), tags[len(tags)-1]))
	}
	return attrs
}

// slogLogger adapts the standard library's structured logger to Logger.
type slogLogger struct {
	base *slog.Logger
}

// NewSlogLogger builds a Logger backed by log/slog; the CLI does not
// construct one.
func NewSlogLogger(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return slogLogger{base: base}
}

func (l slogLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.base.DebugContext(ctx, msg, keyvals...)
}
func (l slogLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.base.InfoContext(ctx, msg, keyvals...)
}
func (l slogLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.base.WarnContext(ctx, msg, keyvals...)
}
func (l slogLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.base.ErrorContext(ctx, msg, keyvals...)
}

// otelMetrics adapts an OTel metric.Meter to Metrics, lazily creating one
// instrument per metric name the first time it's used.
type otelMetrics struct {
	meter metric.Meter
	counters map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges map[string]metric.Float64Gauge
}

// NewOTelMetrics builds a Metrics backed by the given OTel Meter.
func NewOTelMetrics(meter metric.Meter) Metrics {
	return &otelMetrics{
		meter: meter,
		counters: map[string]metric.Float64Counter{},
		histograms: map[string]metric.Float64Histogram{},
		gauges: map[string]metric.Float64Gauge{},
	}
}

func (m *otelMetrics) IncCounter(name string, value float64, tags ...string) {
	c, ok := m.counters[name]
	if !ok {
		c, _ = m.meter.Float64Counter(name)
		m.counters[name] = c
	}
	c.Add(context.Background(), value, metric.WithAttributes(attrsFromTags(tags)...))
}

func (m *otelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	h, ok := m.histograms[name]
	if !ok {
		h, _ = m.meter.Float64Histogram(name)
		m.histograms[name] = h
	}
	h.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attrsFromTags(tags)...))
}

func (m *otelMetrics) RecordGauge(name string, value float64, tags ...string) {
	g, ok := m.gauges[name]
	if !ok {
		g, _ = m.meter.Float64Gauge(name)
		m.gauges[name] = g
	}
	g.Record(context.Background(), value, metric.WithAttributes(attrsFromTags(tags)...))
}

// otelTracer adapts an OTel trace.Tracer to Tracer/Span.
type otelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer builds a Tracer backed by the given OTel Tracer.
func NewOTelTracer(tracer trace.Tracer) Tracer {
	return otelTracer{tracer: tracer}
}

func (t otelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }
func (s otelSpan) AddEvent(name string, _ ...any) { s.span.AddEvent(name) }
func (s otelSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }
func (s otelSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }
