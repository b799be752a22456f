package ai

import "context"

// TextGenerator is a text-generation backend. Implementations include the
// Anthropic Messages API client and the Copilot SDK client; Service also
// implements it so callers can stay unaware of provider selection.
type TextGenerator interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is the input for a non-streaming completion call.
type CompletionRequest struct {
	Model        string         `json:"model"`
	Messages     []Message      `json:"messages"`
	MaxTokens    int            `json:"maxTokens"`
	Temperature  float64        `json:"temperature"`
	SystemPrompt string         `json:"systemPrompt,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Message is a single message in a conversation.
type Message struct {
	Role    string `json:"role"` // "user", "assistant"
	Content string `json:"content"`
}

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	Usage        TokenUsage `json:"usage"`
	FinishReason string     `json:"finishReason"`
}

// TokenUsage tracks input and output token counts.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// UserPrompt concatenates the user messages of a request.
func (r CompletionRequest) UserPrompt() string {
	var out string
	for _, m := range r.Messages {
		if m.Role != "user" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}
