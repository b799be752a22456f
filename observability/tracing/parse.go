package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const parserTracerName = "nlflow.parser"

// ParseTracer creates spans around instruction parsing and model calls.
type ParseTracer struct {
	tracer trace.Tracer
}

// NewParseTracer creates a ParseTracer. If tracer is nil, the global
// tracer provider is used.
func NewParseTracer(tracer trace.Tracer) *ParseTracer {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(parserTracerName)
	}
	return &ParseTracer{tracer: tracer}
}

// StartParse begins a span for one parse call. The instruction text is not
// recorded, only its length.
func (p *ParseTracer) StartParse(ctx context.Context, instructionLen, availableApps int) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "nlflow.parse",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("nlflow.instruction.length", instructionLen),
			attribute.Int("nlflow.available_apps", availableApps),
		),
	)
}

// StartModelCall begins a child span for a language model request.
func (p *ParseTracer) StartModelCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "nlflow.model.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("nlflow.model.provider", provider),
			attribute.String("nlflow.model.name", model),
		),
	)
}

// SetOutcome annotates a parse span with its outcome and step count.
func (p *ParseTracer) SetOutcome(span trace.Span, outcome string, steps int) {
	span.SetAttributes(
		attribute.String("nlflow.outcome", outcome),
		attribute.Int("nlflow.steps", steps),
	)
}

// RecordError records an error on the given span and sets the span status.
func (p *ParseTracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks a span as successful.
func (p *ParseTracer) SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
