package copilotai

import (
	"context"
	"errors"

	copilot "github.com/github/copilot-sdk/go"
)

// errEmptyResponse is returned when a session finishes without assistant text.
var errEmptyResponse = errors.New("empty response from Copilot")

// SessionWrapper wraps the methods we use from copilot.Session so they can be mocked.
type SessionWrapper interface {
	// SendAndWait sends a prompt and returns the assistant's final text.
	SendAndWait(ctx context.Context, prompt string) (string, error)
	Destroy() error
}

// ClientWrapper wraps the methods we use from copilot.Client so they can be mocked.
type ClientWrapper interface {
	CreateSession(ctx context.Context, cfg *copilot.SessionConfig) (SessionWrapper, error)
}

// realClientWrapper delegates to a real copilot.Client.
type realClientWrapper struct {
	cli *copilot.Client
}

func (w *realClientWrapper) CreateSession(ctx context.Context, cfg *copilot.SessionConfig) (SessionWrapper, error) {
	sess, err := w.cli.CreateSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &realSessionWrapper{sess: sess}, nil
}

// realSessionWrapper delegates to a real copilot.Session.
type realSessionWrapper struct {
	sess *copilot.Session
}

func (w *realSessionWrapper) SendAndWait(ctx context.Context, prompt string) (string, error) {
	resp, err := w.sess.SendAndWait(ctx, copilot.MessageOptions{Prompt: prompt})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Data.Content == nil {
		return "", errEmptyResponse
	}
	return *resp.Data.Content, nil
}

func (w *realSessionWrapper) Destroy() error {
	return w.sess.Destroy()
}
