package provider

import (
	"context"
	"errors"
)

// Provider names accepted in configuration.
const (
	NameGemini = "gemini"
	NameOllama = "ollama"
	NameClaude = "claude"
)

// ErrEmptyResponse indicates the model returned no text.
var ErrEmptyResponse = errors.New("provider returned empty response")

// Generator turns a prompt into raw model text. Implementations must
// honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
