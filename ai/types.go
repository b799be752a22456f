package ai

import "errors"

// Provider identifies an AI backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderCopilot   Provider = "copilot"
	ProviderAuto      Provider = "auto"
)

var (
	// ErrNoGenerator is returned when no backend is registered for the
	// requested provider.
	ErrNoGenerator = errors.New("no AI generators registered")

	// ErrBlocked is returned when guardrails reject a prompt.
	ErrBlocked = errors.New("prompt blocked by guardrails")

	// ErrRateLimited is returned when the model call budget is exhausted and
	// the caller's context ends before a token is available.
	ErrRateLimited = errors.New("model call rate limit exceeded")
)
