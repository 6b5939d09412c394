// Package claude implements provider.Generator using the claude CLI in
// headless print mode.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/shahar-caura/salestalk/internal/provider"
)

// Claude runs `claude -p <prompt> --output-format json` and unwraps the
// result envelope.
type Claude struct {
	Timeout time.Duration
	Model   string
	Logger  *slog.Logger

	// commandContext is overridable for testing.
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New(timeout time.Duration, model string, logger *slog.Logger) *Claude {
	return &Claude{
		Timeout:        timeout,
		Model:          model,
		Logger:         logger,
		commandContext: exec.CommandContext,
	}
}

// envelope is the subset of the --output-format json payload we read.
type envelope struct {
	Type    string `json:"type"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

func (c *Claude) Generate(ctx context.Context, prompt string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := []string{"-p", prompt, "--output-format", "json"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}

	var stderr bytes.Buffer
	cmd := c.commandContext(ctx, "claude", args...)
	cmd.Stderr = &stderr

	start := time.Now()
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("claude timed out after %s: %w", c.Timeout, ctx.Err())
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("claude failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text, err := unwrap(out)
	if err != nil {
		return "", err
	}
	c.Logger.Debug("claude completed", "duration", time.Since(start), "bytes", len(text))
	return text, nil
}

// unwrap returns the model text from the CLI output. Output that is not an
// envelope is returned as-is.
func unwrap(out []byte) (string, error) {
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return "", provider.ErrEmptyResponse
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Type == "" {
		return raw, nil
	}
	if env.IsError {
		return "", fmt.Errorf("claude reported error: %s", env.Result)
	}
	text := strings.TrimSpace(env.Result)
	if text == "" {
		return "", provider.ErrEmptyResponse
	}
	return text, nil
}
