package claude

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahar-caura/salestalk/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// stubCommand returns a commandContext that prints stdout, writes stderr and
// exits with exitCode.
func stubCommand(stdout, stderr string, exitCode int) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		script := fmt.Sprintf("printf '%%s' '%s'; printf '%%s' '%s' >&2; exit %d", stdout, stderr, exitCode)
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
}

func TestGenerate_Envelope(t *testing.T) {
	c := New(5*time.Second, "", testLogger())
	var gotArgs []string
	stub := stubCommand(`{"type":"result","is_error":false,"result":"{\"intent\":\"what\"}"}`, "", 0)
	c.commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotArgs = args
		return stub(ctx, name, args...)
	}

	out, err := c.Generate(context.Background(), "classify")
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"what"}`, out)
	assert.Equal(t, []string{"-p", "classify", "--output-format", "json"}, gotArgs)
}

func TestGenerate_ModelFlag(t *testing.T) {
	c := New(5*time.Second, "haiku", testLogger())
	var gotArgs []string
	c.commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotArgs = args
		return exec.CommandContext(ctx, "echo", "{}")
	}

	_, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "haiku", gotArgs[len(gotArgs)-1])
}

func TestGenerate_PlainOutput(t *testing.T) {
	c := New(5*time.Second, "", testLogger())
	c.commandContext = stubCommand(`{"intent":"rank"}`, "", 0)

	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"rank"}`, out)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		stderr  string
		code    int
		wantErr string
		wantIs  error
	}{
		{name: "non-zero exit", stderr: "not logged in", code: 1, wantErr: "not logged in"},
		{name: "empty output", wantIs: provider.ErrEmptyResponse},
		{name: "error envelope", stdout: `{"type":"result","is_error":true,"result":"rate limited"}`, wantErr: "rate limited"},
		{name: "empty result", stdout: `{"type":"result","is_error":false,"result":""}`, wantIs: provider.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(5*time.Second, "", testLogger())
			c.commandContext = stubCommand(tt.stdout, tt.stderr, tt.code)

			_, err := c.Generate(context.Background(), "p")
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantErr != "" {
				assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
			}
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	c := New(50*time.Millisecond, "", testLogger())
	c.commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sleep", "60")
	}

	_, err := c.Generate(context.Background(), "slow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_ContextCancelled(t *testing.T) {
	c := New(5*time.Second, "", testLogger())
	c.commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sleep", "60")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, "p")
	require.ErrorIs(t, err, context.Canceled)
}
