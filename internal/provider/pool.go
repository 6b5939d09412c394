package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Pool holds generators in priority order. Generate asks each in turn
// until one answers.
type Pool struct {
	gens   []Generator
	names  []string
	logger *slog.Logger
}

// NewPool creates a pool from generators and their display names.
// gens and names must have the same length and at least one entry.
func NewPool(gens []Generator, names []string, logger *slog.Logger) *Pool {
	return &Pool{gens: gens, names: names, logger: logger}
}

// Primary returns the first generator in the pool.
func (p *Pool) Primary() Generator { return p.gens[0] }

// Len returns the number of generators in the pool.
func (p *Pool) Len() int { return len(p.gens) }

// Generate falls through to the next generator on failure. A cancelled or
// expired ctx stops the fallthrough. When every generator fails, the
// errors are joined.
func (p *Pool) Generate(ctx context.Context, prompt string) (string, error) {
	var errs []error
	for i, g := range p.gens {
		out, err := g.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.names[i], err))
		if i+1 < len(p.gens) {
			p.logger.Warn("provider failed, falling back", "provider", p.names[i], "next", p.names[i+1], "error", err)
		}
	}
	return "", errors.Join(errs...)
}
