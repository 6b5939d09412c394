// Package calibrate turns a provider's self-reported confidence into the
// confidence reported to callers.
package calibrate

import (
	"math"

	"github.com/shahar-caura/salestalk/internal/model"
)

// Config holds the calibration constants. All values are in [0,1].
type Config struct {
	Neutral              float64
	LowCoverageThreshold float64
	LowCoveragePenalty   float64
	CorrectionPenalty    float64
	MaxCorrectionPenalty float64
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		Neutral:              0.7,
		LowCoverageThreshold: 0.5,
		LowCoveragePenalty:   0.15,
		CorrectionPenalty:    0.03,
		MaxCorrectionPenalty: 0.3,
	}
}

// Input is everything calibration depends on.
type Input struct {
	Reported    model.Confidence
	Canonical   bool
	Coverage    float64
	Corrections model.Log
	Refused     bool
}

type Calibrator struct {
	cfg Config
}

func New(cfg Config) *Calibrator {
	return &Calibrator{cfg: cfg}
}

// Calibrate returns overall and per-component confidence, each clamped to
// [0,1]. Components the provider did not report start from the overall
// value. A refused record is always 0.
func (c *Calibrator) Calibrate(in Input) model.Confidence {
	out := model.Confidence{Components: make(map[string]float64, len(model.Components))}
	if in.Refused {
		for _, comp := range model.Components {
			out.Components[comp] = 0
		}
		return out
	}

	base := c.cfg.Neutral
	if in.Reported.Reported {
		base = in.Reported.Overall
	}

	var shared float64
	if !in.Canonical && in.Coverage < c.cfg.LowCoverageThreshold {
		shared = c.cfg.LowCoveragePenalty
	}

	perComponent := make(map[string]int)
	total := 0
	for _, e := range in.Corrections {
		if e.Trivial {
			continue
		}
		total++
		if e.Component != "" {
			perComponent[e.Component]++
		}
	}

	out.Overall = clamp(base - shared - c.correctionPenalty(total))
	for _, comp := range model.Components {
		v, ok := in.Reported.Components[comp]
		if !ok {
			v = base
		}
		out.Components[comp] = clamp(v - shared - c.correctionPenalty(perComponent[comp]))
	}
	return out
}

func (c *Calibrator) correctionPenalty(n int) float64 {
	return min(float64(n)*c.cfg.CorrectionPenalty, c.cfg.MaxCorrectionPenalty)
}

// clamp bounds x to [0,1] and rounds to four places; NaN becomes 0.
func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	x = max(0, min(1, x))
	return math.Round(x*1e4) / 1e4
}
