// Package intent classifies a business question into intent, subject,
// measure, dimension and time against a taxonomy version.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"

	"github.com/shahar-caura/salestalk/internal/calibrate"
	"github.com/shahar-caura/salestalk/internal/constrain"
	"github.com/shahar-caura/salestalk/internal/correct"
	"github.com/shahar-caura/salestalk/internal/language"
	"github.com/shahar-caura/salestalk/internal/logging"
	"github.com/shahar-caura/salestalk/internal/metrics"
	"github.com/shahar-caura/salestalk/internal/model"
	"github.com/shahar-caura/salestalk/internal/normalize"
	"github.com/shahar-caura/salestalk/internal/parse"
	"github.com/shahar-caura/salestalk/internal/provider"
	"github.com/shahar-caura/salestalk/internal/repair"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

// Source hands out the taxonomy snapshot for a request.
type Source interface {
	Current() *taxonomy.Version
}

// Recorder receives every finished result, for example to queue it for
// human review. Errors are logged and never fail the request.
type Recorder interface {
	Record(ctx context.Context, req Request, res *Result) error
}

// Options configure a Classifier.
type Options struct {
	DetectionEnabled  bool
	CacheEnabled      bool
	CacheSize         int
	RewriteEnabled    bool
	FuzzyThreshold    float64
	ExemplarThreshold float64
	RepairEnabled     bool
	MaxRepairSteps    int
	CoverageThreshold float64
	RefusalThreshold  float64
	RankLimitCap      int
	Calibration       calibrate.Config
	// Timeout bounds the provider work of one request, repair included.
	// Zero leaves the caller's deadline in charge.
	Timeout time.Duration

	Metrics  *metrics.Metrics
	Recorder Recorder
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		DetectionEnabled:  true,
		CacheEnabled:      true,
		CacheSize:         1024,
		RewriteEnabled:    true,
		FuzzyThreshold:    0.85,
		ExemplarThreshold: 0.85,
		RepairEnabled:     true,
		MaxRepairSteps:    1,
		CoverageThreshold: 0.5,
		RefusalThreshold:  0.3,
		Calibration:       calibrate.DefaultConfig(),
		Timeout:           30 * time.Second,
	}
}

// versionState is the per-version machinery built from one snapshot.
type versionState struct {
	v          *taxonomy.Version
	detector   *language.Detector
	normalizer *normalize.Normalizer
}

// Classifier runs the full pipeline. It is safe for concurrent use.
type Classifier struct {
	src        Source
	gen        provider.Generator
	opts       Options
	logger     *slog.Logger
	validate   *validator.Validate
	calibrator *calibrate.Calibrator

	mu    sync.Mutex
	state atomic.Pointer[versionState]
}

// New builds a Classifier. The current taxonomy version is compiled
// eagerly so configuration problems surface here.
func New(src Source, gen provider.Generator, opts Options, logger *slog.Logger) (*Classifier, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		return nil, fmt.Errorf("register validation: %w", err)
	}
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	c := &Classifier{
		src:        src,
		gen:        gen,
		opts:       opts,
		logger:     logger,
		validate:   validate,
		calibrator: calibrate.New(opts.Calibration),
	}
	if _, err := c.stateFor(src.Current()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Classifier) stateFor(v *taxonomy.Version) (*versionState, error) {
	if st := c.state.Load(); st != nil && st.v == v {
		return st, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.state.Load(); st != nil && st.v == v {
		return st, nil
	}

	nopts := normalize.Options{
		Rewrite:           c.opts.RewriteEnabled,
		FuzzyThreshold:    c.opts.FuzzyThreshold,
		ExemplarThreshold: c.opts.ExemplarThreshold,
	}
	if c.opts.CacheEnabled {
		nopts.CacheSize = c.opts.CacheSize
	}
	n, err := normalize.New(v, nopts)
	if err != nil {
		return nil, err
	}
	st := &versionState{v: v, detector: language.New(v), normalizer: n}
	c.state.Store(st)
	return st, nil
}

// Classify interprets req.Question. It returns a resolved or refused
// result, a *ValidationError for bad input (no provider call is made), or
// an error wrapping ErrProvider when the provider fails or its output
// cannot be parsed.
func (c *Classifier) Classify(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if err := c.validateRequest(req); err != nil {
		c.opts.Metrics.Request(metrics.OutcomeInvalid, "", time.Since(start))
		return nil, err
	}
	reqID := req.RequestID
	if reqID == "" {
		reqID = uuid.NewString()
	}

	st, err := c.stateFor(c.src.Current())
	if err != nil {
		return nil, err
	}
	v := st.v

	if req.LanguageOverride != "" {
		if _, ok := v.Language(req.LanguageOverride); !ok {
			c.opts.Metrics.Request(metrics.OutcomeInvalid, "", time.Since(start))
			return nil, &ValidationError{Field: "language_override", Reason: fmt.Sprintf("unsupported language %q", req.LanguageOverride)}
		}
	}

	logger := c.logger.With("request_id", reqID)
	if t := TenantOf(req.TenantContext); t != "" {
		logger = logger.With("tenant", t)
	}

	det := c.detect(st, req)
	norm := st.normalizer.Normalize(req.Question, det.Language)
	nonCanonical := det.Language != v.Canonical()
	if nonCanonical {
		c.opts.Metrics.Coverage(norm.Coverage)
	}
	logger = logger.With("language", det.Language)

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	raw, err := c.generate(ctx, BuildPrompt(norm.Text, det.Language, v))
	if err != nil {
		c.fail(logger, det.Language, start, err)
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	process := c.processor(norm.Text, v)
	cand, err := process(raw)
	if err != nil {
		c.fail(logger, det.Language, start, err)
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	steps := 0
	if c.opts.RepairEnabled && c.opts.MaxRepairSteps > 0 {
		loop := repair.Loop{
			Generator: provider.GeneratorFunc(c.generate),
			Process:   process,
			Prompt: func(q string, rec model.Record, issues []repair.Issue) string {
				return BuildRepairPrompt(q, rec, issues, v)
			},
			MaxSteps: c.opts.MaxRepairSteps,
		}
		signals := repair.Signals{
			NonCanonical:      nonCanonical,
			Coverage:          norm.Coverage,
			CoverageThreshold: c.opts.CoverageThreshold,
			Unmapped:          norm.Unmapped,
		}
		cand, steps, err = loop.Run(ctx, norm.Text, signals, cand)
		c.opts.Metrics.RepairSteps(steps)
		if err != nil {
			c.fail(logger, det.Language, start, err)
			return nil, fmt.Errorf("%w: %w", ErrProvider, err)
		}
	}

	conf := c.calibrator.Calibrate(calibrate.Input{
		Reported:    cand.Record.Confidence,
		Canonical:   !nonCanonical,
		Coverage:    norm.Coverage,
		Corrections: cand.Log,
		Refused:     cand.Refusal != nil,
	})

	res := &Result{
		Intent:     cand.Record.Intent,
		Subject:    cand.Record.Subject,
		Measure:    cand.Record.Measure,
		Dimension:  cand.Record.Dimension,
		Time:       cand.Record.Time,
		Confidence: conf,
		Metadata: Metadata{
			RequestID:             reqID,
			TaxonomyVersion:       v.ID(),
			DetectedLanguage:      det.Language,
			LanguageConfidence:    det.Confidence,
			DetectionMethod:       det.Method,
			NormalizationCoverage: norm.Coverage,
			CorrectionsApplied:    cand.Log.Strings(),
			ParseAttempts:         cand.Attempts,
			RepairSteps:           steps,
		},
	}
	if nonCanonical {
		res.Metadata.NormalizedQuestion = norm.Text
		res.Metadata.Rewrites = rewrites(norm)
		res.Metadata.RewriteTags = norm.Tags
	}

	switch {
	case cand.Refusal != nil:
		refuse(res, cand.Refusal.Reason)
	case conf.Overall < c.opts.RefusalThreshold:
		refuse(res, ReasonLowConfidence)
		res.Confidence = c.calibrator.Calibrate(calibrate.Input{Refused: true})
	}
	res.Metadata.ProcessingMS = time.Since(start).Milliseconds()

	c.observe(res, cand.Log, start)
	logger.Info("classified",
		"question", logging.Truncate(req.Question, 100),
		"intent", res.Intent,
		"subject", res.Subject,
		"measure", res.Measure,
		"refused", res.Refused,
		"reason", res.RefusalReason,
		"confidence", res.Confidence.Overall,
		"corrections", len(cand.Log),
		"repair_steps", steps,
		"duration", time.Since(start),
	)

	if c.opts.Recorder != nil {
		if err := c.opts.Recorder.Record(ctx, req, res); err != nil {
			logger.Warn("review record failed", "error", err)
		}
	}
	return res, nil
}

func (c *Classifier) validateRequest(req Request) error {
	err := c.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "notblank", "required":
		return &ValidationError{Field: fe.Field(), Reason: "must not be empty"}
	case "max":
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("must be at most %s characters, got %d", fe.Param(), utf8.RuneCountInString(fmt.Sprint(fe.Value())))}
	default:
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %s", fe.Tag())}
	}
}

func (c *Classifier) detect(st *versionState, req Request) language.Detection {
	switch {
	case req.LanguageOverride != "":
		return language.Detection{Language: req.LanguageOverride, Confidence: 1, Method: language.MethodOverride}
	case !c.opts.DetectionEnabled:
		return language.Detection{Language: st.v.Canonical(), Confidence: 1, Method: language.MethodDisabled}
	default:
		return st.detector.Detect(req.Question)
	}
}

func (c *Classifier) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	raw, err := c.gen.Generate(ctx, prompt)
	c.opts.Metrics.Provider(time.Since(start))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", provider.ErrEmptyResponse
	}
	return raw, nil
}

// processor returns the parse, correct and constrain chain for one
// request. question is the canonical-vocabulary text.
func (c *Classifier) processor(question string, v *taxonomy.Version) repair.ProcessFunc {
	return func(raw string) (repair.Candidate, error) {
		rec, attempts, err := parse.Parse(raw)
		c.opts.Metrics.ParseAttempts(attempts)
		if err != nil {
			return repair.Candidate{Attempts: attempts}, err
		}

		rec, log := correct.Apply(rec, question, v)
		out, clog, err := constrain.Apply(rec, v, constrain.Options{RankLimitCap: c.opts.RankLimitCap})
		cand := repair.Candidate{Record: out, Log: append(log, clog...), Attempts: attempts}
		var refusal *constrain.RefusalError
		if errors.As(err, &refusal) {
			cand.Refusal = refusal
		}
		return cand, nil
	}
}

// refuse clears every classified field so a refusal never carries a
// partial guess.
func refuse(res *Result, reason string) {
	res.Refused = true
	res.RefusalReason = reason
	res.Intent, res.Subject, res.Measure = "", "", ""
	res.Dimension = model.Dimension{}
	res.Time = model.Time{}
}

func (c *Classifier) observe(res *Result, log model.Log, start time.Time) {
	m := c.opts.Metrics
	outcome := metrics.OutcomeResolved
	if res.Refused {
		outcome = metrics.OutcomeRefused
		m.Refusal(res.RefusalReason)
	}
	m.Request(outcome, res.Metadata.DetectedLanguage, time.Since(start))
	for _, e := range log {
		m.Correction(string(e.Pass), e.Rule)
	}
}

func (c *Classifier) fail(logger *slog.Logger, lang string, start time.Time, err error) {
	c.opts.Metrics.Request(metrics.OutcomeError, lang, time.Since(start))
	logger.Error("classification failed", "error", err, "duration", time.Since(start))
}

// TenantOf extracts a printable tenant id from an opaque context: a
// string, or a map with a "tenant" or "tenant_id" key.
func TenantOf(tc any) string {
	switch t := tc.(type) {
	case string:
		return t
	case map[string]any:
		for _, k := range []string{"tenant", "tenant_id"} {
			if s, ok := t[k].(string); ok {
				return s
			}
		}
	case map[string]string:
		if s := t["tenant"]; s != "" {
			return s
		}
		return t["tenant_id"]
	}
	return ""
}

// rewrites lists the phrase and exemplar rewrites behind a normalized
// question, as "pattern:name", "fuzzy:name" or "exemplar".
func rewrites(norm normalize.Result) []string {
	var out []string
	kind := "pattern"
	if norm.FuzzyScore > 0 {
		kind = "fuzzy"
	}
	for _, p := range norm.Patterns {
		out = append(out, kind+":"+p)
	}
	if norm.Exemplar != "" {
		out = append(out, "exemplar")
	}
	return out
}
