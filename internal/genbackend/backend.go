// Package genbackend abstracts the text-generation backend: stateless
// completion (prompt + parameters -> text) and token counting. Both the
// text-generation-webui HTTP API and the Gemini API are supported.
package genbackend

import "context"

// Params are the per-call generation parameters. StopStrings and
// NegativePrompt are filled in per speaker by the chat pipeline; the rest
// come from configuration.
type Params struct {
	MaxNewTokens     int
	AutoMaxNewTokens bool
	Temperature      float64
	TopP             float64
	NegativePrompt   string
	StopStrings      []string
}

// Client is the generation backend consumed by the request pipeline.
// Calls may fail or be slow; failures propagate as request-execution
// failures.
type Client interface {
	// Generate produces a completion for a raw prompt.
	Generate(ctx context.Context, prompt string, params Params) (string, error)

	// CountTokens returns the backend tokenizer's token count for text.
	CountTokens(ctx context.Context, text string) (int, error)
}
