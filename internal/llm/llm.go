// Package llm defines the text-generation contract used by query enhancement
// and document metadata generation, with an OpenAI-compatible implementation.
package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when the provider lacks a credential.
var ErrNotConfigured = errors.New("llm provider not configured")

// Request is one single-turn completion request.
type Request struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
}

// Response carries the generated text.
type Response struct {
	Text string `json:"text"`
}

// TextGenerator generates text for a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, req Request) (Response, error)
}
