package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentmesh/agentmesh/core"
)

// Provider implements core.Telemetry on the OpenTelemetry API. Spans
// and metrics flow to whatever global providers the host process has
// installed; without an SDK configured they are no-ops, which keeps the
// provider safe to use unconditionally.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

// NewProvider creates a telemetry provider scoped to the service name.
func NewProvider(serviceName string) *Provider {
	return &Provider{
		tracer:   otel.Tracer(serviceName),
		meter:    otel.Meter(serviceName),
		counters: make(map[string]metric.Float64Counter),
	}
}

// StartSpan begins a span and returns the derived context.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric adds the value to a counter named after the metric,
// attaching the labels as attributes. Counters are created lazily and
// cached per name.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	counter := p.counter(name)
	if counter == nil {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

func (p *Provider) counter(name string) metric.Float64Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if counter, ok := p.counters[name]; ok {
		return counter
	}
	counter, err := p.meter.Float64Counter(name)
	if err != nil {
		return nil
	}
	p.counters[name] = counter
	return counter
}

// otelSpan adapts trace.Span to core.Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}
