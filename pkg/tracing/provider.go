package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

// ProviderConfig identifies the worker on exported spans and sets how many
// root traces are kept.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRatio    float64 // fraction of root traces kept; >= 1 keeps all
}

// Setup installs a batching OTLP tracer provider and registers its tracer
// for StartSpan. The returned func flushes and shuts the provider down.
func Setup(ctx context.Context, cfg ProviderConfig, otlp exporters.OTLPConfig) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, otlp)
	if err != nil {
		return nil, err
	}

	tp := newProvider(cfg, sdktrace.WithBatcher(exporter))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(headerPropagator)
	SetTracer(tp.Tracer(cfg.ServiceName))

	return tp.Shutdown, nil
}

func newProvider(cfg ProviderConfig, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts,
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(newSampler(cfg.SampleRatio)),
	)
	return sdktrace.NewTracerProvider(opts...)
}

func newResource(cfg ProviderConfig) *resource.Resource {
	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	return resource.NewSchemaless(attrs...)
}

// newSampler honours an upstream sampling decision and applies the ratio
// only to traces that start here.
func newSampler(ratio float64) sdktrace.Sampler {
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
