package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/shahar-caura/salestalk/internal/metrics"
	"github.com/shahar-caura/salestalk/internal/model"
	"github.com/shahar-caura/salestalk/internal/parse"
	"github.com/shahar-caura/salestalk/internal/provider"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
	"github.com/shahar-caura/salestalk/vocab"
)

type staticSource struct{ v *taxonomy.Version }

func (s staticSource) Current() *taxonomy.Version { return s.v }

// stubGen answers prompts with fn and counts calls.
type stubGen struct {
	calls atomic.Int32
	fn    func(prompt string) (string, error)
}

func (g *stubGen) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.fn(prompt)
}

func reply(s string) *stubGen {
	return &stubGen{fn: func(string) (string, error) { return s, nil }}
}

func loadDefault(t *testing.T) *taxonomy.Version {
	t.Helper()
	v, err := taxonomy.Load(vocab.FS, vocab.DefaultEnv, vocab.DefaultVersion)
	require.NoError(t, err)
	return v
}

func newClassifier(t *testing.T, gen provider.Generator, mutate ...func(*Options)) *Classifier {
	t.Helper()
	opts := DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(staticSource{loadDefault(t)}, gen, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestClassify_QuarterRevenue(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"revenue","measure":"revenue","time":{"period":"Q3"},"confidence":{"overall":0.9}}`)
	c := newClassifier(t, gen)

	res, err := c.Classify(context.Background(), Request{Question: "What is Q3 revenue?"})
	require.NoError(t, err)

	assert.False(t, res.Refused)
	assert.Equal(t, "what", res.Intent)
	assert.Equal(t, "revenue", res.Subject)
	assert.Equal(t, "revenue", res.Measure)
	assert.Equal(t, model.Time{Period: "Q3", Granularity: "quarter"}, res.Time)
	assert.Equal(t, "en", res.Metadata.DetectedLanguage)
	assert.Equal(t, 1.0, res.Metadata.NormalizationCoverage)
	assert.Equal(t, 1, res.Metadata.ParseAttempts)
	assert.Zero(t, res.Metadata.RepairSteps)
	assert.NotEmpty(t, res.Metadata.RequestID)
	assert.Contains(t, res.Metadata.TaxonomyVersion, "default/v1@")
	assert.InDelta(t, 0.87, res.Confidence.Overall, 1e-9)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestClassify_TopActiveCustomers(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"customers","measure":"customer_count","dimension":{},"time":{}}`)
	c := newClassifier(t, gen)

	res, err := c.Classify(context.Background(), Request{Question: "Top 5 active customers in EMEA"})
	require.NoError(t, err)

	assert.Equal(t, "rank", res.Intent)
	assert.Equal(t, 5, res.Dimension.Limit)
	assert.Equal(t, "top", res.Dimension.Direction)
	assert.Equal(t, map[string][]string{"status": {"active"}, "region": {"EMEA"}}, res.Dimension.Values)

	out, err := json.Marshal(res.Dimension)
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit":5,"direction":"top","status":"active","region":"EMEA"}`, string(out))
}

func TestClassify_DiacriticsDoNotChangeResult(t *testing.T) {
	var prompts sync.Map
	gen := &stubGen{fn: func(p string) (string, error) {
		prompts.Store(p, true)
		return `{"intent":"what","subject":"trzby","measure":"value","time":{"period":"q3"}}`, nil
	}}
	c := newClassifier(t, gen)

	plain, err := c.Classify(context.Background(), Request{Question: "Jake jsou nase trzby v Q3?"})
	require.NoError(t, err)
	accented, err := c.Classify(context.Background(), Request{Question: "Jaké jsou naše tržby v Q3?"})
	require.NoError(t, err)

	for _, res := range []*Result{plain, accented} {
		assert.Equal(t, "cs", res.Metadata.DetectedLanguage)
		assert.Equal(t, "what are our revenue in q3?", res.Metadata.NormalizedQuestion)
		assert.Equal(t, 1.0, res.Metadata.NormalizationCoverage)
	}
	assert.Equal(t, plain.Intent, accented.Intent)
	assert.Equal(t, plain.Subject, accented.Subject)
	assert.Equal(t, plain.Measure, accented.Measure)
	assert.Equal(t, plain.Dimension, accented.Dimension)
	assert.Equal(t, plain.Time, accented.Time)
	assert.Equal(t, plain.Metadata.CorrectionsApplied, accented.Metadata.CorrectionsApplied)

	n := 0
	prompts.Range(func(any, any) bool { n++; return true })
	assert.Equal(t, 1, n, "both spellings should produce the same prompt")
}

func TestClassify_ValidationBeforeProvider(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"empty", Request{Question: ""}, "question"},
		{"whitespace", Request{Question: " \t\n "}, "question"},
		{"too long", Request{Question: strings.Repeat("é", MaxQuestionLen+1)}, "question"},
		{"unknown override", Request{Question: "What is Q3 revenue?", LanguageOverride: "de"}, "language_override"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := reply(`{}`)
			c := newClassifier(t, gen)

			res, err := c.Classify(context.Background(), tt.req)
			assert.Nil(t, res)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Zero(t, gen.calls.Load())
		})
	}
}

func TestClassify_MaxLengthAccepted(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"revenue","measure":"revenue"}`)
	c := newClassifier(t, gen)

	_, err := c.Classify(context.Background(), Request{Question: strings.Repeat("a", MaxQuestionLen)})
	require.NoError(t, err)
}

func TestClassify_UnknownMetricRefused(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"revenue","measure":"warp_drive_efficiency","confidence":{"overall":0.95}}`)
	c := newClassifier(t, gen)

	res, err := c.Classify(context.Background(), Request{Question: "What is our warp drive efficiency?"})
	require.NoError(t, err)

	assert.True(t, res.Refused)
	assert.Equal(t, "unknown_measure", res.RefusalReason)
	assert.Empty(t, res.Subject)
	assert.Empty(t, res.Measure)
	assert.Zero(t, res.Confidence.Overall)
	for _, v := range res.Confidence.Components {
		assert.Zero(t, v)
	}
	// one repair attempt that came back with the same answer
	assert.Equal(t, 1, res.Metadata.RepairSteps)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestClassify_RepairFixesUnknownMeasure(t *testing.T) {
	gen := &stubGen{fn: func(p string) (string, error) {
		if strings.Contains(p, "Previous output") {
			return `{"intent":"what","subject":"customers","measure":"churn_rate"}`, nil
		}
		return `{"intent":"what","subject":"customers","measure":"customer_leakage"}`, nil
	}}
	c := newClassifier(t, gen)

	res, err := c.Classify(context.Background(), Request{Question: "How bad is customer leakage?"})
	require.NoError(t, err)

	assert.False(t, res.Refused)
	assert.Equal(t, "churn_rate", res.Measure)
	assert.Equal(t, 1, res.Metadata.RepairSteps)
	assert.Equal(t, 2, res.Metadata.ParseAttempts)
	assert.Contains(t, res.Metadata.CorrectionsApplied, "repair.step_accepted:1")
}

func TestClassify_RepairDisabled(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"revenue","measure":"warp_drive_efficiency"}`)
	c := newClassifier(t, gen, func(o *Options) { o.RepairEnabled = false })

	res, err := c.Classify(context.Background(), Request{Question: "What is our warp drive efficiency?"})
	require.NoError(t, err)
	assert.True(t, res.Refused)
	assert.Zero(t, res.Metadata.RepairSteps)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestClassify_LowConfidenceRefused(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"revenue","measure":"revenue","confidence":{"overall":0.2}}`)
	c := newClassifier(t, gen)

	res, err := c.Classify(context.Background(), Request{Question: "revenue?"})
	require.NoError(t, err)
	assert.True(t, res.Refused)
	assert.Equal(t, ReasonLowConfidence, res.RefusalReason)
	assert.Empty(t, res.Intent)
	assert.Zero(t, res.Confidence.Overall)
}

func TestClassify_ProviderErrors(t *testing.T) {
	outage := errors.New("connection refused")

	tests := []struct {
		name string
		gen  *stubGen
		want error
	}{
		{"outage", &stubGen{fn: func(string) (string, error) { return "", outage }}, outage},
		{"unparsable", reply("Sorry, I can't classify that."), parse.ErrUnparsable},
		{"empty", reply("   "), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClassifier(t, tt.gen)
			res, err := c.Classify(context.Background(), Request{Question: "What is Q3 revenue?"})
			assert.Nil(t, res)
			require.ErrorIs(t, err, ErrProvider)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestClassify_Timeout(t *testing.T) {
	c := newClassifier(t, slowGen{delay: time.Second}, func(o *Options) { o.Timeout = 10 * time.Millisecond })

	_, err := c.Classify(context.Background(), Request{Question: "What is Q3 revenue?"})
	require.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type slowGen struct{ delay time.Duration }

func (s slowGen) Generate(ctx context.Context, _ string) (string, error) {
	select {
	case <-time.After(s.delay):
		return `{"intent":"what","subject":"revenue","measure":"revenue"}`, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestClassify_LanguageOverrideAndDisabledDetection(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"revenue","measure":"revenue"}`)

	c := newClassifier(t, gen)
	res, err := c.Classify(context.Background(), Request{Question: "trzby v Q3", LanguageOverride: "cs"})
	require.NoError(t, err)
	assert.Equal(t, "cs", res.Metadata.DetectedLanguage)
	assert.Equal(t, "override", res.Metadata.DetectionMethod)
	assert.Equal(t, "revenue in q3", res.Metadata.NormalizedQuestion)

	c = newClassifier(t, gen, func(o *Options) { o.DetectionEnabled = false })
	res, err = c.Classify(context.Background(), Request{Question: "Jake jsou nase trzby v Q3?"})
	require.NoError(t, err)
	assert.Equal(t, "en", res.Metadata.DetectedLanguage)
	assert.Equal(t, "disabled", res.Metadata.DetectionMethod)
	assert.Empty(t, res.Metadata.NormalizedQuestion)
}

func TestClassify_CzechPhraseRewrite(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"revenue","measure":"revenue","time":{"period":"last_month"}}`)

	c := newClassifier(t, gen)
	res, err := c.Classify(context.Background(), Request{Question: "Kolik jsme vydělali minulý měsíc?", LanguageOverride: "cs"})
	require.NoError(t, err)
	assert.Equal(t, "what is revenue last_month?", res.Metadata.NormalizedQuestion)
	assert.Equal(t, []string{"pattern:how_much_we_made"}, res.Metadata.Rewrites)
	assert.Equal(t, []string{"revenue"}, res.Metadata.RewriteTags)
	assert.Equal(t, 1.0, res.Metadata.NormalizationCoverage)

	res, err = c.Classify(context.Background(), Request{Question: "Kolik nás stojí získání nového zákazníka?", LanguageOverride: "cs"})
	require.NoError(t, err)
	assert.Equal(t, "what is cac", res.Metadata.NormalizedQuestion)
	assert.Equal(t, []string{"exemplar"}, res.Metadata.Rewrites)

	c = newClassifier(t, gen, func(o *Options) { o.RewriteEnabled = false })
	res, err = c.Classify(context.Background(), Request{Question: "Kolik jsme vydělali minulý měsíc?", LanguageOverride: "cs"})
	require.NoError(t, err)
	assert.Empty(t, res.Metadata.Rewrites)
	assert.Less(t, res.Metadata.NormalizationCoverage, 1.0)
}

type recorded struct {
	mu   sync.Mutex
	reqs []Request
}

func (r *recorded) Record(_ context.Context, req Request, _ *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return errors.New("disk full")
}

func TestClassify_RecorderAndMetrics(t *testing.T) {
	rec := &recorded{}
	reg := prometheus.NewRegistry()
	gen := reply(`{"intent":"what","subject":"revenue","measure":"revenue"}`)
	c := newClassifier(t, gen, func(o *Options) {
		o.Recorder = rec
		o.Metrics = metrics.New(reg)
	})

	res, err := c.Classify(context.Background(), Request{Question: "What is Q3 revenue?", RequestID: "req-1", TenantContext: map[string]any{"tenant": "acme"}})
	require.NoError(t, err, "recorder errors must not fail the request")
	assert.Equal(t, "req-1", res.Metadata.RequestID)
	require.Len(t, rec.reqs, 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestClassify_Concurrent(t *testing.T) {
	gen := &stubGen{fn: func(p string) (string, error) {
		if strings.Contains(p, "## Question\n\nchurn") {
			return `{"intent":"trend","subject":"customers","measure":"churn_rate"}`, nil
		}
		return `{"intent":"what","subject":"revenue","measure":"revenue"}`, nil
	}}
	c := newClassifier(t, gen)

	questions := []string{"What is Q3 revenue?", "churn trend last 6 months", "Jake jsou nase trzby v Q3?"}
	var g errgroup.Group
	for i := range 60 {
		q := questions[i%len(questions)]
		g.Go(func() error {
			res, err := c.Classify(context.Background(), Request{Question: q})
			if err != nil {
				return err
			}
			if res.Refused {
				return fmt.Errorf("%q refused: %s", q, res.RefusalReason)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestResult_JSONShape(t *testing.T) {
	gen := reply(`{"intent":"what","subject":"revenue","measure":"revenue"}`)
	c := newClassifier(t, gen)

	res, err := c.Classify(context.Background(), Request{Question: "revenue in EMEA"})
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	for _, k := range []string{"intent", "subject", "measure", "dimension", "time", "confidence", "refused", "metadata"} {
		assert.Contains(t, m, k)
	}
	assert.NotContains(t, m, "refusal_reason")
	meta := m["metadata"].(map[string]any)
	for _, k := range []string{"detected_language", "language_confidence", "normalization_coverage", "corrections_applied", "parse_attempts", "repair_steps"} {
		assert.Contains(t, meta, k)
	}
	conf := m["confidence"].(map[string]any)
	assert.Len(t, conf["components"], len(model.Components))
}
