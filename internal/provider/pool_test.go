package provider_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahar-caura/salestalk/internal/provider"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type countingGen struct {
	calls int
	out   string
	err   error
}

func (g *countingGen) Generate(context.Context, string) (string, error) {
	g.calls++
	return g.out, g.err
}

func TestPool_PrimaryAnswers(t *testing.T) {
	a := &countingGen{out: "a"}
	b := &countingGen{out: "b"}
	p := provider.NewPool([]provider.Generator{a, b}, []string{"gemini", "ollama"}, testLogger())

	out, err := p.Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "a", out)
	assert.Equal(t, 0, b.calls)
	assert.Same(t, a, p.Primary())
	assert.Equal(t, 2, p.Len())
}

func TestPool_FallsBack(t *testing.T) {
	a := &countingGen{err: errors.New("quota")}
	b := &countingGen{out: "b"}
	p := provider.NewPool([]provider.Generator{a, b}, []string{"gemini", "ollama"}, testLogger())

	out, err := p.Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "b", out)
	assert.Equal(t, 1, a.calls)
}

func TestPool_AllFail(t *testing.T) {
	quota := errors.New("quota")
	p := provider.NewPool([]provider.Generator{
		&countingGen{err: quota},
		&countingGen{err: provider.ErrEmptyResponse},
	}, []string{"gemini", "claude"}, testLogger())

	_, err := p.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, quota)
	assert.ErrorIs(t, err, provider.ErrEmptyResponse)
	assert.Contains(t, err.Error(), "gemini: quota")
	assert.Contains(t, err.Error(), "claude: ")
}

func TestPool_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &countingGen{out: "b"}
	p := provider.NewPool([]provider.Generator{
		provider.GeneratorFunc(func(ctx context.Context, _ string) (string, error) { return "", ctx.Err() }),
		b,
	}, []string{"gemini", "ollama"}, testLogger())

	_, err := p.Generate(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.calls)
}
