package nlparse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/GoCodeAlone/nlflow/ai"
	"github.com/GoCodeAlone/nlflow/observability"
	"github.com/GoCodeAlone/nlflow/observability/tracing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestParser(fb Fallback) *Parser {
	return NewParser(ParserConfig{
		Detector: newTestDetector(false),
		Fallback: fb,
		Logger:   quietLogger(),
	})
}

func TestParser_PatternPathSkipsModel(t *testing.T) {
	gen := &mockGenerator{content: modelReply}
	p := newTestParser(NewModelFallback(gen, DefaultFallbackConfig()))

	res, err := p.ParseWithOutcome(context.Background(),
		"Send an email to a@b.com, then create a github issue, then post to slack #dev", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomePattern {
		t.Errorf("expected pattern outcome, got %s", res.Outcome)
	}
	if gen.calls != 0 {
		t.Errorf("model should not be called when patterns match, got %d calls", gen.calls)
	}
	if res.Workflow.Name != "Send an email to a@b.com,..." {
		t.Errorf("unexpected name %q", res.Workflow.Name)
	}
}

func TestParser_EmptyMatchUsesModel(t *testing.T) {
	gen := &mockGenerator{content: modelReply}
	p := newTestParser(NewModelFallback(gen, DefaultFallbackConfig()))

	res, err := p.ParseWithOutcome(context.Background(), "banana banana banana", []string{"slack"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeModel {
		t.Fatalf("expected model outcome, got %s (%v)", res.Outcome, res.FallbackErr)
	}
	if gen.calls != 1 {
		t.Errorf("expected one model call, got %d", gen.calls)
	}
	if res.Workflow.Description != "banana banana banana" {
		t.Errorf("description = %q", res.Workflow.Description)
	}
}

func TestParser_EmptyMatchDegrades(t *testing.T) {
	tests := []struct {
		name    string
		fb      Fallback
		wantErr error
	}{
		{"transport failure", NewModelFallback(&mockGenerator{err: errors.New("503 from upstream")}, DefaultFallbackConfig()), nil},
		{"malformed reply", NewModelFallback(&mockGenerator{content: "sorry, no idea"}, DefaultFallbackConfig()), ErrNoJSON},
		{"invalid shape", NewModelFallback(&mockGenerator{content: `{"name":"x","steps":[]}`}, DefaultFallbackConfig()), ErrMalformedOutput},
		{"no fallback", nil, ai.ErrNoGenerator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestParser(tt.fb).ParseWithOutcome(context.Background(), "banana banana banana", nil)
			if err != nil {
				t.Fatalf("degradation must not surface an error, got %v", err)
			}
			if res.Outcome != OutcomeDegraded {
				t.Errorf("expected degraded outcome, got %s", res.Outcome)
			}
			if res.FallbackErr == nil {
				t.Error("expected FallbackErr to be set")
			}
			if tt.wantErr != nil && !errors.Is(res.FallbackErr, tt.wantErr) {
				t.Errorf("FallbackErr = %v, want %v", res.FallbackErr, tt.wantErr)
			}

			wf := res.Workflow
			if wf.Name != "banana banana banana" || wf.Description != "banana banana banana" {
				t.Errorf("unexpected name/description %q / %q", wf.Name, wf.Description)
			}
			if wf.Steps == nil || len(wf.Steps) != 0 {
				t.Errorf("expected empty non-nil steps, got %#v", wf.Steps)
			}
			if wf.RequiredApps == nil {
				t.Error("requiredApps must never be nil")
			}
		})
	}
}

func TestParser_EmptyInstruction(t *testing.T) {
	_, err := newTestParser(nil).Parse(context.Background(), "", nil)
	if !errors.Is(err, ErrEmptyInstruction) {
		t.Errorf("expected ErrEmptyInstruction, got %v", err)
	}
}

func TestParser_NameTruncation(t *testing.T) {
	tests := []struct {
		instruction string
		want        string
	}{
		{"remind me to water the plants every single morning", "remind me to water the..."},
		{"post to slack #dev", "post to slack #dev"},
		{"one two three four five six", "one two three four five"},
		{"  spaced   out   words   that   keep   going   on  ", "spaced out words that keep..."},
	}
	p := newTestParser(nil)
	for _, tt := range tests {
		t.Run(tt.instruction, func(t *testing.T) {
			wf, err := p.Parse(context.Background(), tt.instruction, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if wf.Name != tt.want {
				t.Errorf("name = %q, want %q", wf.Name, tt.want)
			}
			words := strings.Fields(strings.TrimSuffix(wf.Name, "..."))
			if len(words) > 5 {
				t.Errorf("name has %d words, want at most 5", len(words))
			}
		})
	}
}

func TestParser_Deterministic(t *testing.T) {
	p := newTestParser(nil)
	in := "schedule a meeting, wait for 2 hours, then send an email to team@example.com subject: Recap"

	first, err := p.Parse(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.Parse(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated parse differs:\n%+v\n%+v", first, second)
	}
}

func TestParser_RecordsMetricsAndSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	m := observability.NewMetrics()
	p := NewParser(ParserConfig{
		Detector: newTestDetector(false),
		Logger:   quietLogger(),
		Tracer:   tracing.NewParseTracer(tp.Tracer("test")),
		Metrics:  m,
	})

	if _, err := p.Parse(context.Background(), "wait for 1 minute", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Parse(context.Background(), "banana", nil); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.ParsesTotal.WithLabelValues("pattern")); got != 1 {
		t.Errorf("pattern parses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ParsesTotal.WithLabelValues("degraded")); got != 1 {
		t.Errorf("degraded parses = %v, want 1", got)
	}
	if spans := exporter.GetSpans(); len(spans) != 2 {
		t.Errorf("expected 2 parse spans, got %d", len(spans))
	}
}

// phrases are instruction fragments known to the matchers, mixed with noise.
var phrases = []string{
	"send an email to a@b.com",
	"send an email",
	"create an issue in github",
	"create a linear ticket",
	"post to slack #dev",
	"send a message to teams",
	"schedule a meeting at 10:30 am for 1 hour",
	"wait for 3 seconds",
	"pause for 2 days",
	"if the deploy fails then post to discord otherwise wait for 1 minute",
	"subject: Hello",
	"banana",
	"and then",
	"",
}

func checkWorkflow(t *rapid.T, wf *ParsedWorkflow, instruction string) {
	if wf == nil {
		t.Fatal("nil workflow")
	}
	if wf.Description != instruction {
		t.Fatalf("description %q != instruction %q", wf.Description, instruction)
	}
	if wf.Steps == nil || wf.RequiredApps == nil {
		t.Fatal("steps and requiredApps must be non-nil")
	}
	if err := Validate(wf.Steps); err != nil {
		t.Fatalf("invalid workflow: %v", err)
	}

	// Top-level dependencies only point backwards.
	seen := map[string]bool{}
	for _, s := range wf.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID || !seen[dep] {
				t.Fatalf("step %s depends on %s which does not precede it", s.ID, dep)
			}
		}
		seen[s.ID] = true
	}

	// requiredApps is exactly the deduplicated set of step apps.
	want := map[string]bool{}
	var walk func([]Step)
	walk = func(ss []Step) {
		for _, s := range ss {
			if s.App != "" {
				want[s.App] = true
			}
			if s.Condition != nil {
				walk(s.Condition.Then)
				walk(s.Condition.Else)
			}
		}
	}
	walk(wf.Steps)
	got := map[string]bool{}
	for _, app := range wf.RequiredApps {
		if got[app] {
			t.Fatalf("duplicate app %s in %v", app, wf.RequiredApps)
		}
		got[app] = true
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("requiredApps %v does not match step apps %v", wf.RequiredApps, want)
	}
}

func TestParser_ComposedInstructions(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(phrases), 1, 6).Draw(rt, "parts")
		sep := rapid.SampledFrom([]string{", then ", " and ", ". ", "\n"}).Draw(rt, "sep")
		instruction := strings.Join(parts, sep)
		if instruction == "" {
			instruction = "banana"
		}
		recursive := rapid.Bool().Draw(rt, "recursive")

		p := NewParser(ParserConfig{
			Detector: NewDetector(DetectorOptions{Clock: fixedClock, RecursiveBranches: recursive}),
			Logger:   quietLogger(),
		})
		wf, err := p.Parse(context.Background(), instruction, nil)
		if err != nil {
			rt.Fatalf("parse %q: %v", instruction, err)
		}
		checkWorkflow(rt, wf, instruction)
	})
}

func TestParser_Totality(t *testing.T) {
	p := newTestParser(NewModelFallback(&mockGenerator{content: "{not json"}, DefaultFallbackConfig()))
	rapid.Check(t, func(rt *rapid.T) {
		instruction := rapid.StringN(1, 200, -1).Draw(rt, "instruction")
		wf, err := p.Parse(context.Background(), instruction, nil)
		if err != nil {
			rt.Fatalf("parse %q: %v", instruction, err)
		}
		checkWorkflow(rt, wf, instruction)
	})
}
