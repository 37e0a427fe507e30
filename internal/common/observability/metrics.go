package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the OTel meter and tracer used by the orchestrator.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider shutdowner
	tracer         trace.Tracer

	requestCounter otelmetric.Int64Counter
	stageDuration  otelmetric.Float64Histogram
	citations      otelmetric.Int64Histogram
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// New wires an OTel Prometheus exporter. Tracing stays a no-op until
// EnableTracing is called.
func New(serviceName string) (*Observability, error) {
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}

	exporter, err := prometheus.New()
	if err != nil {
		return o, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)
	o.meterProvider = provider

	o.requestCounter, _ = meter.Int64Counter(
		"pipeline.requests",
		otelmetric.WithDescription("Pipeline requests by route and outcome"),
	)
	o.stageDuration, _ = meter.Float64Histogram(
		"pipeline.stage.duration",
		otelmetric.WithDescription("Pipeline stage duration"),
		otelmetric.WithUnit("ms"),
	)
	o.citations, _ = meter.Int64Histogram(
		"pipeline.recommendation.citations",
		otelmetric.WithDescription("Citations per grounded recommendation"),
	)
	return o, nil
}

// NewNoop returns an instance that records nothing.
func NewNoop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("noop")}
}

// Tracer returns the active tracer.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

// StartStage opens a span for one pipeline stage.
func (o *Observability) StartStage(ctx context.Context, stage, requestID string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "pipeline."+stage, trace.WithAttributes(
		attribute.String("pipeline.stage", stage),
		attribute.String("pipeline.request_id", requestID),
	))
}

func (o *Observability) RecordRequest(ctx context.Context, route, outcome string) {
	if o.requestCounter != nil {
		o.requestCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("route", route),
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) RecordStageDuration(ctx context.Context, stage string, duration time.Duration, status string) {
	if o.stageDuration != nil {
		o.stageDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordCitations(ctx context.Context, count int) {
	if o.citations != nil {
		o.citations.Record(ctx, int64(count))
	}
}

// Shutdown flushes exporters.
func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
