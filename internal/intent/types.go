package intent

import (
	"errors"
	"fmt"

	"github.com/shahar-caura/salestalk/internal/model"
)

// MaxQuestionLen is the longest accepted question, in characters.
const MaxQuestionLen = 10000

// Request is one question to classify.
type Request struct {
	Question         string `json:"question" validate:"notblank,max=10000"`
	TenantContext    any    `json:"tenant_context,omitempty"`
	LanguageOverride string `json:"language_override,omitempty" validate:"omitempty,max=16"`
	// RequestID is generated when empty.
	RequestID string `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

// Result is the classification returned to callers. A refused result
// carries a reason and no intent, subject, measure, dimension or time.
type Result struct {
	Intent        string           `json:"intent"`
	Subject       string           `json:"subject"`
	Measure       string           `json:"measure"`
	Dimension     model.Dimension  `json:"dimension"`
	Time          model.Time       `json:"time"`
	Confidence    model.Confidence `json:"confidence"`
	Refused       bool             `json:"refused"`
	RefusalReason string           `json:"refusal_reason,omitempty"`
	Metadata      Metadata         `json:"metadata"`
}

// Metadata explains how a result was produced.
type Metadata struct {
	RequestID             string   `json:"request_id"`
	TaxonomyVersion       string   `json:"taxonomy_version"`
	DetectedLanguage      string   `json:"detected_language"`
	LanguageConfidence    float64  `json:"language_confidence"`
	DetectionMethod       string   `json:"detection_method"`
	NormalizationCoverage float64  `json:"normalization_coverage"`
	NormalizedQuestion    string   `json:"normalized_question,omitempty"`
	Rewrites              []string `json:"rewrites,omitempty"`
	RewriteTags           []string `json:"rewrite_tags,omitempty"`
	CorrectionsApplied    []string `json:"corrections_applied"`
	ParseAttempts         int      `json:"parse_attempts"`
	RepairSteps           int      `json:"repair_steps"`
	ProcessingMS          int64    `json:"processing_ms"`
}

// Refusal reasons beyond the constraint stages.
const ReasonLowConfidence = "low_confidence"

var (
	// ErrProvider indicates the generation provider failed or timed out.
	// Callers may retry.
	ErrProvider = errors.New("generation provider failed")

	// ErrInvalidRequest matches every *ValidationError.
	ErrInvalidRequest = errors.New("invalid request")
)

// ValidationError reports a request rejected before any provider call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRequest }
