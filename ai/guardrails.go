package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// GuardrailConfig defines safety constraints applied to prompts before they
// reach a model.
type GuardrailConfig struct {
	// MaxInputTokens rejects prompts whose estimated size exceeds it. Zero
	// disables the check.
	MaxInputTokens int      `yaml:"maxInputTokens" json:"maxInputTokens"`
	BlockPatterns  []string `yaml:"blockPatterns" json:"blockPatterns"`
	// MaskPII replaces emails, phone numbers and similar values in user
	// messages before they are sent.
	MaskPII bool `yaml:"maskPII" json:"maskPII"`
	// FilterOutput also applies BlockPatterns to model replies.
	FilterOutput bool `yaml:"filterOutput" json:"filterOutput"`
}

// GuardrailResult contains the outcome of guardrail checks.
type GuardrailResult struct {
	Allowed     bool     `json:"allowed"`
	Reasons     []string `json:"reasons,omitempty"`
	MaskedInput string   `json:"masked_input,omitempty"`
}

// Guardrails enforces safety constraints on model calls.
type Guardrails struct {
	config      GuardrailConfig
	patterns    []*regexp.Regexp // compiled block patterns
	piiPatterns []piiPattern     // PII detection patterns
}

// piiPattern pairs a compiled regex with a replacement label.
type piiPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// defaultPIIPatterns returns built-in PII detection patterns.
func defaultPIIPatterns() []piiPattern {
	return []piiPattern{
		{
			// Email addresses
			regex:       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			replacement: "[EMAIL REDACTED]",
		},
		{
			// SSN (XXX-XX-XXXX)
			regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			replacement: "[SSN REDACTED]",
		},
		{
			// Credit card numbers (13-19 digits, optionally separated by spaces or dashes)
			regex:       regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`),
			replacement: "[CREDIT CARD REDACTED]",
		},
		{
			// US phone numbers: (XXX) XXX-XXXX, XXX-XXX-XXXX, +1XXXXXXXXXX
			regex:       regexp.MustCompile(`(?:\+1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
			replacement: "[PHONE REDACTED]",
		},
		{
			// IPv4 addresses
			regex:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			replacement: "[IP REDACTED]",
		},
	}
}

// NewGuardrails creates a new Guardrails instance from config. It compiles
// all block patterns at initialization time and returns an error if any
// pattern is invalid.
func NewGuardrails(config GuardrailConfig) (*Guardrails, error) {
	g := &Guardrails{
		config:      config,
		piiPatterns: defaultPIIPatterns(),
	}

	for _, pat := range config.BlockPatterns {
		compiled, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid block pattern %q: %w", pat, err)
		}
		g.patterns = append(g.patterns, compiled)
	}

	return g, nil
}

// CheckInput validates input before sending it to a model. It checks the
// token limit and block patterns, and optionally masks PII.
func (g *Guardrails) CheckInput(ctx context.Context, input string) (*GuardrailResult, error) {
	result := &GuardrailResult{Allowed: true}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Approximate: 1 token ~= 4 chars
	if g.config.MaxInputTokens > 0 {
		estimatedTokens := len(input) / 4
		if estimatedTokens > g.config.MaxInputTokens {
			result.Allowed = false
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("input exceeds max tokens: estimated %d > limit %d", estimatedTokens, g.config.MaxInputTokens))
		}
	}

	for _, pat := range g.patterns {
		if pat.MatchString(input) {
			result.Allowed = false
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("input matches blocked pattern: %s", pat.String()))
		}
	}

	if g.config.MaskPII {
		result.MaskedInput = g.MaskPII(input)
	}

	return result, nil
}

// CheckOutput applies the block patterns to a model reply when output
// filtering is enabled.
func (g *Guardrails) CheckOutput(output string) *GuardrailResult {
	result := &GuardrailResult{Allowed: true}
	if !g.config.FilterOutput {
		return result
	}
	for _, pat := range g.patterns {
		if pat.MatchString(output) {
			result.Allowed = false
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("output matches blocked pattern: %s", pat.String()))
		}
	}
	return result
}

// Apply checks the user messages of req and returns the request to send,
// with PII masked when configured. A rejected prompt yields an error
// wrapping ErrBlocked.
func (g *Guardrails) Apply(ctx context.Context, req CompletionRequest) (CompletionRequest, error) {
	result, err := g.CheckInput(ctx, req.UserPrompt())
	if err != nil {
		return req, err
	}
	if !result.Allowed {
		return req, fmt.Errorf("%w: %s", ErrBlocked, strings.Join(result.Reasons, "; "))
	}
	if !g.config.MaskPII {
		return req, nil
	}

	masked := make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == "user" {
			m.Content = g.MaskPII(m.Content)
		}
		masked[i] = m
	}
	req.Messages = masked
	return req, nil
}

// MaskPII replaces PII patterns with masked versions.
func (g *Guardrails) MaskPII(input string) string {
	masked := input
	for _, pp := range g.piiPatterns {
		masked = pp.regex.ReplaceAllString(masked, pp.replacement)
	}
	return masked
}

// modelRates holds per-token costs (input, output) for known models.
type modelRates struct {
	input  float64
	output float64
}

// knownModelRates maps model identifiers to their per-token pricing.
var knownModelRates = map[string]modelRates{
	"claude-sonnet-4-20250514":  {input: 0.000003, output: 0.000015},
	"claude-haiku-4-5-20251001": {input: 0.000001, output: 0.000005},
	"claude-opus-4-6":           {input: 0.000015, output: 0.000075},
}

// EstimateCost estimates the cost of a model call based on model and token
// counts. Unknown models are priced at the claude-sonnet rates.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	rates, ok := knownModelRates[model]
	if !ok && model != "" {
		for name, r := range knownModelRates {
			if strings.Contains(model, extractModelFamily(name)) {
				rates = r
				ok = true
				break
			}
		}
	}
	if !ok {
		rates = knownModelRates["claude-sonnet-4-20250514"]
	}

	return float64(inputTokens)*rates.input + float64(outputTokens)*rates.output
}

// extractModelFamily extracts the family name (e.g., "sonnet", "haiku", "opus")
// from a full model identifier.
func extractModelFamily(model string) string {
	parts := strings.Split(model, "-")
	if len(parts) >= 2 {
		return parts[1]
	}
	return model
}

// DefaultGuardrailConfig returns the prompt-injection block list used when
// guardrails are enabled without explicit patterns. PII masking is off
// because recipients and channels are legitimate workflow parameters.
func DefaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{
		MaxInputTokens: 8000,
		BlockPatterns: []string{
			`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`,
			`(?i)you\s+are\s+now\s+`,
			`(?i)pretend\s+you\s+are`,
		},
	}
}
