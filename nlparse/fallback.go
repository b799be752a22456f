package nlparse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/nlflow/ai"
)

// Errors returned by ModelFallback. The Parser never surfaces them; they
// select the degraded outcome.
var (
	ErrNoJSON          = errors.New("no JSON found in model response")
	ErrMalformedOutput = errors.New("malformed model response")
)

// FallbackConfig tunes the model request.
type FallbackConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// DefaultFallbackConfig returns the request settings used when none are given.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{MaxTokens: 2048, Temperature: 0.2}
}

// ModelFallback asks a language model for a workflow when pattern detection
// finds nothing.
type ModelFallback struct {
	generator ai.TextGenerator
	cfg       FallbackConfig
}

// NewModelFallback creates a ModelFallback backed by generator.
func NewModelFallback(generator ai.TextGenerator, cfg FallbackConfig) *ModelFallback {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultFallbackConfig().MaxTokens
	}
	return &ModelFallback{generator: generator, cfg: cfg}
}

// Parse sends the instruction to the model and validates the returned
// workflow. Any failure is returned as an error; it never panics on bad
// model output.
func (f *ModelFallback) Parse(ctx context.Context, instruction string, available []string) (*ParsedWorkflow, error) {
	if f.generator == nil {
		return nil, ai.ErrNoGenerator
	}

	resp, err := f.generator.Complete(ctx, ai.CompletionRequest{
		Model:        f.cfg.Model,
		SystemPrompt: SystemPrompt(),
		Messages:     []ai.Message{{Role: "user", Content: UserPrompt(instruction, available)}},
		MaxTokens:    f.cfg.MaxTokens,
		Temperature:  f.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	return DecodeModelWorkflow(instruction, resp.Content)
}

type modelWorkflow struct {
	Name                 *string         `json:"name"`
	Description          string          `json:"description"`
	Steps                json.RawMessage `json:"steps"`
	RequiredApps         []string        `json:"requiredApps"`
	RequiredIntegrations []string        `json:"requiredIntegrations"`
}

// DecodeModelWorkflow extracts and validates a workflow from raw model text.
// The description is always the original instruction and requiredApps is
// recomputed from the steps so it cannot disagree with them.
func DecodeModelWorkflow(instruction, text string) (*ParsedWorkflow, error) {
	raw := ai.ExtractJSON(text)
	if raw == "" {
		return nil, ErrNoJSON
	}

	var mw modelWorkflow
	if err := json.Unmarshal([]byte(raw), &mw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if mw.Name == nil {
		return nil, fmt.Errorf("%w: missing name", ErrMalformedOutput)
	}
	if len(bytes.TrimSpace(mw.Steps)) == 0 || string(bytes.TrimSpace(mw.Steps)) == "null" {
		return nil, fmt.Errorf("%w: missing steps", ErrMalformedOutput)
	}

	var steps []Step
	if err := json.Unmarshal(mw.Steps, &steps); err != nil {
		return nil, fmt.Errorf("%w: steps: %v", ErrMalformedOutput, err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrMalformedOutput)
	}
	normalizeSteps(steps)
	if err := ValidateStrict(steps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	name := strings.TrimSpace(*mw.Name)
	if name == "" {
		name = workflowName(instruction)
	}
	return &ParsedWorkflow{
		Name:         name,
		Description:  instruction,
		Steps:        steps,
		RequiredApps: collectApps(steps),
	}, nil
}

// normalizeSteps lower-cases types and apps and drops empty dependency
// entries, recursing into condition branches.
func normalizeSteps(steps []Step) {
	for i := range steps {
		s := &steps[i]
		s.ID = strings.TrimSpace(s.ID)
		s.Type = StepType(strings.ToLower(strings.TrimSpace(string(s.Type))))
		s.App = strings.ToLower(strings.TrimSpace(s.App))

		deps := s.DependsOn[:0]
		for _, d := range s.DependsOn {
			if d = strings.TrimSpace(d); d != "" {
				deps = append(deps, d)
			}
		}
		s.DependsOn = deps
		if len(s.DependsOn) == 0 {
			s.DependsOn = nil
		}

		if s.Condition != nil {
			if s.Condition.Then == nil {
				s.Condition.Then = []Step{}
			}
			normalizeSteps(s.Condition.Then)
			normalizeSteps(s.Condition.Else)
		}
	}
}
