package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*ParseTracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return NewParseTracer(tp.Tracer("test")), exporter
}

func TestParseTracer_StartParse(t *testing.T) {
	pt, exporter := newTestTracer(t)

	ctx, span := pt.StartParse(context.Background(), 42, 3)
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	pt.SetOutcome(span, "pattern", 2)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "nlflow.parse" {
		t.Errorf("expected span name 'nlflow.parse', got %q", spans[0].Name)
	}

	attrs := map[string]string{}
	for _, attr := range spans[0].Attributes {
		attrs[string(attr.Key)] = attr.Value.Emit()
	}
	want := map[string]string{
		"nlflow.instruction.length": "42",
		"nlflow.available_apps":     "3",
		"nlflow.outcome":            "pattern",
		"nlflow.steps":              "2",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestParseTracer_ModelCallIsChild(t *testing.T) {
	pt, exporter := newTestTracer(t)

	ctx, parent := pt.StartParse(context.Background(), 10, 0)
	_, child := pt.StartModelCall(ctx, "anthropic", "claude")
	child.End()
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "nlflow.model.complete" {
		t.Fatalf("unexpected first span: %q", spans[0].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("expected model span to be a child of the parse span")
	}
}

func TestParseTracer_RecordError(t *testing.T) {
	pt, exporter := newTestTracer(t)

	_, span := pt.StartParse(context.Background(), 1, 0)
	pt.RecordError(span, errors.New("model unavailable"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status.Code)
	}
}

func TestParseTracer_RecordError_Nil(t *testing.T) {
	pt, exporter := newTestTracer(t)

	_, span := pt.StartParse(context.Background(), 1, 0)
	pt.RecordError(span, nil)
	span.End()

	if got := exporter.GetSpans()[0].Status.Code; got == codes.Error {
		t.Error("expected non-error status for nil error")
	}
}

func TestParseTracer_SetSuccess(t *testing.T) {
	pt, exporter := newTestTracer(t)

	_, span := pt.StartParse(context.Background(), 1, 0)
	pt.SetSuccess(span)
	span.End()

	if got := exporter.GetSpans()[0].Status.Code; got != codes.Ok {
		t.Errorf("expected Ok status, got %v", got)
	}
}

func TestNewParseTracer_NilTracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	pt := NewParseTracer(nil)
	if pt.tracer == nil {
		t.Fatal("expected non-nil tracer from global provider")
	}
}
