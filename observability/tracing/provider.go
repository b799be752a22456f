package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects where parse spans are exported and how many are kept.
type Config struct {
	// Endpoint is the OTLP HTTP collector address, host:port.
	Endpoint    string
	ServiceName string
	Insecure    bool
	// SampleRate is the fraction of new traces recorded, within [0, 1].
	// Requests arriving with a sampled parent are always recorded.
	SampleRate float64
}

// DefaultConfig returns the settings used when tracing is enabled without
// further configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:    "localhost:4318",
		ServiceName: "nlflow",
		Insecure:    true,
		SampleRate:  1.0,
	}
}

// Provider owns the process-wide tracer provider. Shutdown flushes pending
// spans.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider exports spans over OTLP/HTTP and installs the provider and a
// W3C trace-context propagator as the otel globals.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return newProvider(ctx, cfg, sdktrace.WithBatcher(exporter))
}

func newProvider(ctx context.Context, cfg Config, export sdktrace.TracerProviderOption) (*Provider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultConfig().ServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

// ParseTracer returns a ParseTracer bound to this provider rather than to
// the global one.
func (p *Provider) ParseTracer() *ParseTracer {
	return NewParseTracer(p.tp.Tracer(parserTracerName))
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
