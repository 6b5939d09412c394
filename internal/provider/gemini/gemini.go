// Package gemini implements provider.Generator on the hosted Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/shahar-caura/salestalk/internal/provider"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// contentGenerator is the part of *genai.Models this package uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini asks a Gemini model for a JSON response.
type Gemini struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a client for apiKey. An empty apiKey falls back to the
// GOOGLE_API_KEY / GEMINI_API_KEY environment variables read by genai.
func New(ctx context.Context, apiKey, model string, timeout time.Duration, logger *slog.Logger) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{models: cli.Models, model: model, timeout: timeout, logger: logger}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0),
		},
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("gemini timed out after %s: %w", g.timeout, ctx.Err())
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", provider.ErrEmptyResponse
	}
	g.logger.Debug("gemini completed", "model", g.model, "duration", time.Since(start), "bytes", len(text))
	return text, nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
