// Package metrics exposes classifier counters and histograms to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "salestalk"

// Outcome labels.
const (
	OutcomeResolved = "resolved"
	OutcomeRefused  = "refused"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics groups every collector the classifier reports to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	refusals        *prometheus.CounterVec
	corrections     *prometheus.CounterVec
	latency         prometheus.Histogram
	providerLatency prometheus.Histogram
	coverage        prometheus.Histogram
	parseAttempts   prometheus.Histogram
	repairSteps     prometheus.Counter
	taxonomyReloads prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "requests_total",
			Help:      "Classification requests by outcome and detected language",
		}, []string{"outcome", "language"}),

		refusals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "refusals_total",
			Help:      "Refused classifications by reason",
		}, []string{"reason"}),

		corrections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "corrections_total",
			Help:      "Corrections applied by pass and rule",
		}, []string{"pass", "rule"}),

		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "latency_seconds",
			Help:      "End-to-end classification latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		providerLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Latency of a single generate call",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		coverage: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "coverage_ratio",
			Help:      "Normalization coverage of non-canonical questions",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1},
		}),

		parseAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parse",
			Name:      "attempts",
			Help:      "Parser strategies tried per request",
			Buckets:   []float64{1, 2, 3, 4, 5, 10},
		}),

		repairSteps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "steps_total",
			Help:      "Self-repair provider calls",
		}),

		taxonomyReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "taxonomy",
			Name:      "reloads_total",
			Help:      "Successful taxonomy reloads",
		}),
	}
}

// Request records one finished request.
func (m *Metrics) Request(outcome, language string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome, language).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *Metrics) Refusal(reason string) {
	if m == nil {
		return
	}
	m.refusals.WithLabelValues(reason).Inc()
}

func (m *Metrics) Correction(pass, rule string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(pass, rule).Inc()
}

func (m *Metrics) Provider(d time.Duration) {
	if m == nil {
		return
	}
	m.providerLatency.Observe(d.Seconds())
}

func (m *Metrics) Coverage(c float64) {
	if m == nil {
		return
	}
	m.coverage.Observe(c)
}

func (m *Metrics) ParseAttempts(n int) {
	if m == nil {
		return
	}
	m.parseAttempts.Observe(float64(n))
}

func (m *Metrics) RepairSteps(n int) {
	if m == nil || n == 0 {
		return
	}
	m.repairSteps.Add(float64(n))
}

func (m *Metrics) TaxonomyReload() {
	if m == nil {
		return
	}
	m.taxonomyReloads.Inc()
}
