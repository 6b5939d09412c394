package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shahar-caura/salestalk/internal/intent"
	"github.com/shahar-caura/salestalk/internal/metrics"
	"github.com/shahar-caura/salestalk/internal/provider"
	"github.com/shahar-caura/salestalk/internal/provider/claude"
	"github.com/shahar-caura/salestalk/internal/provider/gemini"
	"github.com/shahar-caura/salestalk/internal/provider/ollama"
	"github.com/shahar-caura/salestalk/internal/review"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
	"github.com/shahar-caura/salestalk/vocab"
)

// openStore loads the configured taxonomy from disk, or from the copy
// embedded in the binary when no directory is set.
func (a *app) openStore() (*taxonomy.Store, error) {
	t := a.cfg.Taxonomy
	if t.Dir == "" {
		return taxonomy.NewStore(vocab.FS, "", t.Env, t.Version, a.logger)
	}
	if _, err := os.Stat(t.Dir); err != nil {
		return nil, fmt.Errorf("taxonomy dir: %w", err)
	}
	return taxonomy.NewStore(os.DirFS(t.Dir), t.Dir, t.Env, t.Version, a.logger)
}

// newGenerator builds the configured provider, wrapped in a pool when
// fallbacks are configured.
func (a *app) newGenerator(ctx context.Context) (provider.Generator, error) {
	p := a.cfg.Provider
	primary, err := a.buildGenerator(ctx, p.Name, p.Model, p.Endpoint)
	if err != nil {
		return nil, err
	}
	if len(p.Fallback) == 0 {
		return primary, nil
	}

	gens := []provider.Generator{primary}
	names := []string{p.Name}
	for _, name := range p.Fallback {
		g, err := a.buildGenerator(ctx, name, "", "")
		if err != nil {
			return nil, fmt.Errorf("fallback %s: %w", name, err)
		}
		gens = append(gens, g)
		names = append(names, name)
	}
	pool := provider.NewPool(gens, names, a.logger)
	a.logger.Info("provider pool ready", "primary", fmt.Sprintf("%T", pool.Primary()), "providers", pool.Len(), "order", names)
	return pool, nil
}

func (a *app) buildGenerator(ctx context.Context, name, model, endpoint string) (provider.Generator, error) {
	p := a.cfg.Provider
	switch name {
	case provider.NameOllama:
		return ollama.New(endpoint, model, p.Timeout, a.logger), nil
	case provider.NameClaude:
		return claude.New(p.Timeout, model, a.logger), nil
	case provider.NameGemini:
		return gemini.New(ctx, p.APIKey, model, p.Timeout, a.logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func (a *app) reviewStore() *review.Store {
	return review.NewStore(a.cfg.Review.Dir)
}

// classifierOptions maps configuration onto intent.Options. m may be nil.
func (a *app) classifierOptions(m *metrics.Metrics) intent.Options {
	cfg := a.cfg
	opts := intent.Options{
		DetectionEnabled:  cfg.Language.DetectionEnabled,
		CacheEnabled:      cfg.Normalization.CacheEnabled,
		CacheSize:         cfg.Normalization.CacheSize,
		RewriteEnabled:    cfg.Normalization.RewriteEnabled,
		FuzzyThreshold:    cfg.Normalization.FuzzyThreshold,
		ExemplarThreshold: cfg.Normalization.ExemplarThreshold,
		RepairEnabled:     cfg.Repair.Enabled,
		MaxRepairSteps:    cfg.Repair.MaxSteps,
		CoverageThreshold: cfg.Repair.CoverageThreshold,
		RefusalThreshold:  cfg.Confidence.RefusalThreshold,
		RankLimitCap:      cfg.Dimension.RankLimitCap,
		Calibration:       cfg.Confidence.Calibration(),
		Metrics:           m,
	}

	// Each provider call gets the provider timeout; the request as a whole
	// gets one per possible call, fallbacks included.
	calls := 1
	if cfg.Repair.Enabled {
		calls += cfg.Repair.MaxSteps
	}
	calls *= 1 + len(cfg.Provider.Fallback)
	opts.Timeout = cfg.Provider.Timeout * time.Duration(calls)

	if cfg.Review.Enabled {
		opts.Recorder = &review.Recorder{
			Store: a.reviewStore(),
			Policy: review.Policy{
				ConfidenceBelow: cfg.Review.ConfidenceBelow,
				CoverageBelow:   cfg.Review.CoverageBelow,
			},
		}
	}
	return opts
}

func (a *app) newClassifier(ctx context.Context, store *taxonomy.Store, m *metrics.Metrics) (*intent.Classifier, error) {
	gen, err := a.newGenerator(ctx)
	if err != nil {
		return nil, err
	}
	return intent.New(store, gen, a.classifierOptions(m), a.logger)
}
