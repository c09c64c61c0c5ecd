package ai

import (
	"context"
	"errors"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrNotConfigured marks a permanently unavailable generator (no API key).
// Callers must not retry it; transient call failures come back as ordinary
// wrapped errors instead.
var ErrNotConfigured = errors.New("ai generator not configured")

// ErrMalformedMindMap marks mind-map output that could not be decoded as
// the expected JSON tree.
var ErrMalformedMindMap = errors.New("malformed mind map output")
