package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured marks a generator whose credentials or endpoint are missing.
var ErrNotConfigured = errors.New("provider not configured")

type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

type ChatResponse struct {
	Text string
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// StatusError is returned by adapters when the vendor answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d", e.Provider, e.StatusCode)
}

// Temporary reports whether the status is worth retrying on a later request.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
