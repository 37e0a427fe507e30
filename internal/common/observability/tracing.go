package observability

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// EnableTracing exports spans to a Jaeger collector endpoint.
func (o *Observability) EnableTracing(serviceName, collectorEndpoint string, sampleRatio float64) error {
	if collectorEndpoint == "" {
		return fmt.Errorf("jaeger collector endpoint is empty")
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(collectorEndpoint)))
	if err != nil {
		return fmt.Errorf("failed to create jaeger exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return o.useExporter(serviceName, sdktrace.NewBatchSpanProcessor(exporter), res, sampleRatio)
}

// UseSpanProcessor installs a tracer provider around processor. Tests pass
// an in-memory recorder here.
func (o *Observability) UseSpanProcessor(serviceName string, processor sdktrace.SpanProcessor) {
	_ = o.useExporter(serviceName, processor, resource.NewSchemaless(attribute.String("service.name", serviceName)), 1)
}

func (o *Observability) useExporter(serviceName string, processor sdktrace.SpanProcessor, res *resource.Resource, sampleRatio float64) error {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
	otel.SetTracerProvider(provider)
	o.tracerProvider = provider
	o.tracer = provider.Tracer(serviceName)
	return nil
}
