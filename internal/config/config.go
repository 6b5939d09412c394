// Package config loads salestalk settings from a YAML file, env files and
// SALESTALK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/shahar-caura/salestalk/internal/calibrate"
	"github.com/shahar-caura/salestalk/internal/normalize"
	"github.com/shahar-caura/salestalk/internal/provider"
)

// EnvPrefix marks environment overrides. A double underscore separates
// levels: SALESTALK_REPAIR__MAX_STEPS sets repair.max_steps.
const EnvPrefix = "SALESTALK_"

// Config is the top-level salestalk configuration.
type Config struct {
	Taxonomy      TaxonomyConfig      `koanf:"taxonomy"`
	Language      LanguageConfig      `koanf:"language"`
	Normalization NormalizationConfig `koanf:"normalization"`
	Repair        RepairConfig        `koanf:"repair"`
	Confidence    ConfidenceConfig    `koanf:"confidence"`
	Dimension     DimensionConfig     `koanf:"dimension"`
	Provider      ProviderConfig      `koanf:"provider"`
	Review        ReviewConfig        `koanf:"review"`
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
}

// TaxonomyConfig selects the vocabulary. An empty Dir uses the taxonomy
// embedded in the binary.
type TaxonomyConfig struct {
	Dir     string `koanf:"dir"`
	Env     string `koanf:"env" validate:"required"`
	Version string `koanf:"version" validate:"required"`
	Watch   bool   `koanf:"watch"`
}

type LanguageConfig struct {
	DetectionEnabled bool `koanf:"detection_enabled"`
}

type NormalizationConfig struct {
	CacheEnabled      bool    `koanf:"cache_enabled"`
	CacheSize         int     `koanf:"cache_size" validate:"gte=0"`
	RewriteEnabled    bool    `koanf:"rewrite_enabled"`
	FuzzyThreshold    float64 `koanf:"fuzzy_threshold" validate:"gte=0,lte=1"`
	ExemplarThreshold float64 `koanf:"exemplar_threshold" validate:"gte=0,lte=1"`
}

type RepairConfig struct {
	Enabled           bool    `koanf:"enabled"`
	MaxSteps          int     `koanf:"max_steps" validate:"gte=0,lte=5"`
	CoverageThreshold float64 `koanf:"coverage_threshold" validate:"gte=0,lte=1"`
}

// ConfidenceConfig carries the refusal threshold next to the calibration
// constants.
type ConfidenceConfig struct {
	RefusalThreshold     float64 `koanf:"refusal_threshold" validate:"gte=0,lte=1"`
	Neutral              float64 `koanf:"neutral" validate:"gte=0,lte=1"`
	LowCoverageThreshold float64 `koanf:"low_coverage_threshold" validate:"gte=0,lte=1"`
	LowCoveragePenalty   float64 `koanf:"low_coverage_penalty" validate:"gte=0,lte=1"`
	CorrectionPenalty    float64 `koanf:"correction_penalty" validate:"gte=0,lte=1"`
	MaxCorrectionPenalty float64 `koanf:"max_correction_penalty" validate:"gte=0,lte=1"`
}

// Calibration returns the calibrator settings.
func (c ConfidenceConfig) Calibration() calibrate.Config {
	return calibrate.Config{
		Neutral:              c.Neutral,
		LowCoverageThreshold: c.LowCoverageThreshold,
		LowCoveragePenalty:   c.LowCoveragePenalty,
		CorrectionPenalty:    c.CorrectionPenalty,
		MaxCorrectionPenalty: c.MaxCorrectionPenalty,
	}
}

type DimensionConfig struct {
	// RankLimitCap lowers the taxonomy's max rank limit when positive.
	RankLimitCap int `koanf:"rank_limit_cap" validate:"gte=0"`
}

type ProviderConfig struct {
	Name     string        `koanf:"name" validate:"oneof=gemini ollama claude"`
	Model    string        `koanf:"model"`
	Endpoint string        `koanf:"endpoint" validate:"omitempty,url"`
	APIKey   string        `koanf:"api_key"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`

	// Fallback providers are tried in order when Name fails. They use
	// their default model and endpoint.
	Fallback []string `koanf:"fallback" validate:"dive,oneof=gemini ollama claude"`
}

type ReviewConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Dir             string        `koanf:"dir"`
	Retention       time.Duration `koanf:"retention" validate:"gte=0"`
	ConfidenceBelow float64       `koanf:"confidence_below" validate:"gte=0,lte=1"`
	CoverageBelow   float64       `koanf:"coverage_below" validate:"gte=0,lte=1"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gte=0,lte=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Taxonomy:      TaxonomyConfig{Env: "default", Version: "v1"},
		Language:      LanguageConfig{DetectionEnabled: true},
		Normalization: defaultNormalization(),
		Repair:        RepairConfig{Enabled: true, MaxSteps: 1, CoverageThreshold: 0.5},
		Confidence:    defaultConfidence(),
		Provider:      ProviderConfig{Name: provider.NameGemini, Timeout: 30 * time.Second},
		Review: ReviewConfig{
			Dir:             ".salestalk/review",
			Retention:       7 * 24 * time.Hour,
			ConfidenceBelow: 0.5,
			CoverageBelow:   0.5,
		},
		Server: ServerConfig{Port: 8080, ShutdownTimeout: 5 * time.Second},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

func defaultNormalization() NormalizationConfig {
	n := normalize.DefaultOptions()
	return NormalizationConfig{
		CacheEnabled:      true,
		CacheSize:         n.CacheSize,
		RewriteEnabled:    n.Rewrite,
		FuzzyThreshold:    n.FuzzyThreshold,
		ExemplarThreshold: n.ExemplarThreshold,
	}
}

func defaultConfidence() ConfidenceConfig {
	cal := calibrate.DefaultConfig()
	return ConfidenceConfig{
		RefusalThreshold:     0.3,
		Neutral:              cal.Neutral,
		LowCoverageThreshold: cal.LowCoverageThreshold,
		LowCoveragePenalty:   cal.LowCoveragePenalty,
		CorrectionPenalty:    cal.CorrectionPenalty,
		MaxCorrectionPenalty: cal.MaxCorrectionPenalty,
	}
}

// expandEnv wraps a provider and expands ${VAR} references in its bytes.
type expandEnv struct {
	koanf.Provider
}

func (p expandEnv) ReadBytes() ([]byte, error) {
	data, err := p.Provider.ReadBytes()
	if err != nil {
		return nil, err
	}
	return []byte(os.ExpandEnv(string(data))), nil
}

// envKey maps SALESTALK_REPAIR__MAX_STEPS to repair.max_steps.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Load layers defaults, the YAML file at path (skipped when path is empty)
// and SALESTALK_* variables, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := k.Load(expandEnv{file.Provider(path)}, yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config %q: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	if c.Review.Enabled && c.Review.Dir == "" {
		errs = append(errs, errors.New("review.dir is required when review.enabled is true"))
	}
	if c.Taxonomy.Watch && c.Taxonomy.Dir == "" {
		errs = append(errs, errors.New("taxonomy.watch requires taxonomy.dir"))
	}
	if c.Provider.Name == provider.NameOllama && c.Provider.APIKey != "" {
		errs = append(errs, errors.New("provider.api_key is not used by ollama"))
	}

	return errors.Join(errs...)
}

// fieldError renders a validator failure with the dotted config key.
func fieldError(fe validator.FieldError) error {
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", key)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", key, fe.Param(), fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Errorf("%s must be a URL, got %q", key, fmt.Sprint(fe.Value()))
	default:
		return fmt.Errorf("%s must satisfy %s=%s, got %v", key, fe.Tag(), fe.Param(), fe.Value())
	}
}
