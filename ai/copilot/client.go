package copilotai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GoCodeAlone/nlflow/ai"
	copilot "github.com/github/copilot-sdk/go"
)

// ClientConfig holds configuration for the Copilot SDK client.
type ClientConfig struct {
	// CLIPath is the path to the Copilot CLI binary.
	CLIPath string
	// Model to use for sessions (e.g., "claude-sonnet-4-20250514").
	Model string
	// Provider configures BYOK (Bring Your Own Key) for custom model providers.
	Provider *copilot.ProviderConfig
	Logger   *slog.Logger
}

// Client implements ai.TextGenerator using the GitHub Copilot SDK. Each
// completion runs in its own session, destroyed when the call returns.
type Client struct {
	cfg     ClientConfig
	wrapper ClientWrapper
	logger  *slog.Logger
}

// NewClient creates a new Copilot SDK client. The Copilot CLI must be available.
func NewClient(cfg ClientConfig) (*Client, error) {
	cliPath := cfg.CLIPath
	if cliPath == "" {
		cliPath = "copilot"
	}

	cli := copilot.NewClient(&copilot.ClientOptions{
		CLIPath: cliPath,
	})

	return newClientWithWrapper(cfg, &realClientWrapper{cli: cli}), nil
}

func newClientWithWrapper(cfg ClientConfig, wrapper ClientWrapper) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, wrapper: wrapper, logger: logger}
}

// Model returns the configured session model.
func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) createSession(ctx context.Context, model, system string) (SessionWrapper, error) {
	cfg := &copilot.SessionConfig{
		Model:    model,
		Provider: c.cfg.Provider,
	}
	if system != "" {
		cfg.SystemMessage = &copilot.SystemMessageConfig{
			Mode:    "append",
			Content: system,
		}
	}
	session, err := c.wrapper.CreateSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Copilot session: %w", err)
	}
	return session, nil
}

// Complete sends the request's user messages as one prompt in a fresh
// session. MaxTokens and Temperature are not supported by Copilot sessions
// and are ignored.
func (c *Client) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	prompt := req.UserPrompt()
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("completion request has no user prompt")
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	session, err := c.createSession(ctx, model, req.SystemPrompt)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Destroy(); err != nil {
			c.logger.Debug("Failed to destroy Copilot session", "error", err)
		}
	}()

	text, err := session.SendAndWait(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("Copilot request failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyResponse
	}
	return &ai.CompletionResponse{
		Model:        model,
		Content:      text,
		FinishReason: "end_turn",
	}, nil
}
