package nlparse

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/GoCodeAlone/nlflow/ai"
)

// mockGenerator returns a fixed response or error and records the request.
type mockGenerator struct {
	content string
	err     error
	calls   int
	lastReq ai.CompletionRequest
}

func (m *mockGenerator) Complete(_ context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &ai.CompletionResponse{Content: m.content}, nil
}

const modelReply = "Here is your workflow:\n```json\n" + `{
  "name": "Nightly report",
  "description": "ignored",
  "steps": [
    {"id": "s1", "type": "Action", "name": "Query", "description": "Fetch numbers", "app": "Postgres", "action": "query", "parameters": {"sql": "select 1"}},
    {"id": "s2", "type": "delay", "name": "Wait", "description": "Back off", "parameters": {"duration": 60000}, "dependsOn": ["s1", " "]},
    {"id": "s3", "type": "action", "name": "Notify", "description": "Send it", "app": "slack", "action": "send_message", "parameters": {"channel": "ops", "text": "{{s1.result}}"}, "dependsOn": ["s2"]}
  ],
  "requiredApps": ["something-else"]
}` + "\n```\nLet me know if you need changes."

func TestDecodeModelWorkflow(t *testing.T) {
	wf, err := DecodeModelWorkflow("email me the nightly numbers", modelReply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.Name != "Nightly report" {
		t.Errorf("name = %q", wf.Name)
	}
	if wf.Description != "email me the nightly numbers" {
		t.Errorf("description should be the instruction, got %q", wf.Description)
	}
	if len(wf.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(wf.Steps))
	}
	if wf.Steps[0].Type != StepAction || wf.Steps[0].App != "postgres" {
		t.Errorf("expected normalised type and app, got %s %s", wf.Steps[0].Type, wf.Steps[0].App)
	}
	if !reflect.DeepEqual(wf.Steps[1].DependsOn, []string{"s1"}) {
		t.Errorf("expected blank dependency dropped, got %v", wf.Steps[1].DependsOn)
	}
	if _, ok := wf.Steps[2].Parameters["text"].TemplatePath(); !ok {
		t.Error("expected templated text parameter")
	}
	if want := []string{"postgres", "slack"}; !reflect.DeepEqual(wf.RequiredApps, want) {
		t.Errorf("requiredApps = %v, want %v", wf.RequiredApps, want)
	}
}

func TestDecodeModelWorkflow_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"no json", "I cannot help with that.", ErrNoJSON},
		{"broken json", `{"name": "x", "steps": [}`, ErrMalformedOutput},
		{"missing name", `{"steps": [{"id":"a","type":"action","name":"n","description":"d"}]}`, ErrMalformedOutput},
		{"missing steps", `{"name": "x"}`, ErrMalformedOutput},
		{"empty steps", `{"name": "x", "steps": []}`, ErrMalformedOutput},
		{"unknown type", `{"name": "x", "steps": [{"id":"a","type":"sing","name":"n","description":"d"}]}`, ErrMalformedOutput},
		{"empty then", `{"name": "x", "steps": [{"id":"a","type":"condition","name":"n","description":"d","condition":{"expression":"y","then":[]}}]}`, ErrMalformedOutput},
		{"string duration", `{"name": "x", "steps": [{"id":"a","type":"delay","name":"n","description":"d","parameters":{"duration":"5m"}}]}`, ErrMalformedOutput},
		{"forward dependency", `{"name": "x", "steps": [{"id":"a","type":"action","name":"n","description":"d","dependsOn":["b"]},{"id":"b","type":"action","name":"n","description":"d"}]}`, ErrMalformedOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeModelWorkflow("instruction", tt.text)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDecodeModelWorkflow_BlankNameUsesInstruction(t *testing.T) {
	wf, err := DecodeModelWorkflow("archive old tickets every friday afternoon please",
		`{"name": "  ", "steps": [{"id":"a","type":"webhook","name":"Hook","description":"d"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.Name != "archive old tickets every friday..." {
		t.Errorf("name = %q", wf.Name)
	}
	if wf.RequiredApps == nil {
		t.Error("requiredApps must never be nil")
	}
}

func TestModelFallback_Parse(t *testing.T) {
	gen := &mockGenerator{content: modelReply}
	fb := NewModelFallback(gen, FallbackConfig{Model: "test-model"})

	wf, err := fb.Parse(context.Background(), "nightly numbers", []string{"postgres", "slack"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wf.Steps) != 3 {
		t.Errorf("expected 3 steps, got %d", len(wf.Steps))
	}
	if gen.lastReq.Model != "test-model" || gen.lastReq.MaxTokens != 2048 {
		t.Errorf("unexpected request settings: %+v", gen.lastReq)
	}
	if gen.lastReq.SystemPrompt == "" {
		t.Error("expected a system prompt")
	}
	prompt := gen.lastReq.UserPrompt()
	for _, want := range []string{"nightly numbers", "- postgres", "- slack"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestModelFallback_Errors(t *testing.T) {
	transport := errors.New("connection refused")
	_, err := NewModelFallback(&mockGenerator{err: transport}, DefaultFallbackConfig()).
		Parse(context.Background(), "x", nil)
	if !errors.Is(err, transport) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}

	_, err = NewModelFallback(nil, DefaultFallbackConfig()).Parse(context.Background(), "x", nil)
	if !errors.Is(err, ai.ErrNoGenerator) {
		t.Errorf("expected ErrNoGenerator, got %v", err)
	}
}

func TestUserPrompt_NoIntegrations(t *testing.T) {
	p := UserPrompt("do it", nil)
	if !strings.Contains(p, "none connected") {
		t.Errorf("expected no-integration hint, got %q", p)
	}
}
