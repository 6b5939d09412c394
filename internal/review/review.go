// Package review keeps a file-backed queue of classifications that need a
// human look: refusals, low confidence and poorly normalized questions.
package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shahar-caura/salestalk/internal/intent"
)

// DefaultDir is where entries live when no directory is configured.
const DefaultDir = ".salestalk/review"

// Status of a queued entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// Reasons an entry is queued.
const (
	ReasonRefused       = "refused"
	ReasonLowConfidence = "low_confidence"
	ReasonLowCoverage   = "low_coverage"
)

// ErrNotFound is returned for an unknown entry id.
var ErrNotFound = errors.New("review entry not found")

// Entry is one queued classification.
type Entry struct {
	ID        string    `yaml:"id"`
	Status    Status    `yaml:"status"`
	Reasons   []string  `yaml:"reasons"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`

	Question string  `yaml:"question"`
	Tenant   string  `yaml:"tenant,omitempty"`
	Language string  `yaml:"language"`
	Coverage float64 `yaml:"coverage"`
	Taxonomy string  `yaml:"taxonomy_version"`

	Intent        string   `yaml:"intent,omitempty"`
	Subject       string   `yaml:"subject,omitempty"`
	Measure       string   `yaml:"measure,omitempty"`
	Confidence    float64  `yaml:"confidence"`
	RefusalReason string   `yaml:"refusal_reason,omitempty"`
	Corrections   []string `yaml:"corrections,omitempty"`

	Note string `yaml:"note,omitempty"`
}

// Store reads and writes entries as one YAML file each.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the directory entries are stored in.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, fileName(id)+".yaml")
}

// fileName keeps caller-supplied request ids from escaping the directory.
func fileName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

// Save writes e atomically, replacing any entry with the same id.
func (s *Store) Save(e *Entry) error {
	if e.ID == "" {
		return errors.New("review entry has no id")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating review dir: %w", err)
	}

	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling review entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, fileName(e.ID)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp review file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing temp review file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing temp review file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(e.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("renaming review file: %w", err)
	}
	return nil
}

// Load reads the entry with the given id.
func (s *Store) Load(id string) (*Entry, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading review entry %q: %w", id, err)
	}
	var e Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parsing review entry %q: %w", id, err)
	}
	return &e, nil
}

// List returns entries newest first. An empty status matches all.
func (s *Store) List(status Status) ([]*Entry, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing review entries: %w", err)
	}

	var out []*Entry
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue // skip unreadable files
		}
		var e Entry
		if err := yaml.Unmarshal(data, &e); err != nil {
			continue // skip corrupt files
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, &e)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Resolve marks an entry as reviewed.
func (s *Store) Resolve(id, note string) error {
	e, err := s.Load(id)
	if err != nil {
		return err
	}
	e.Status = StatusResolved
	e.Note = note
	return s.Save(e)
}

// Cleanup deletes resolved entries not touched within retention and
// returns how many were removed.
func (s *Store) Cleanup(retention time.Duration) (int, error) {
	entries, err := s.List(StatusResolved)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-retention)
	deleted := 0
	for _, e := range entries {
		if e.UpdatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(s.path(e.ID)); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// Policy decides which results are queued.
type Policy struct {
	ConfidenceBelow float64
	CoverageBelow   float64
}

// Reasons returns why res needs review, or nil.
func (p Policy) Reasons(res *intent.Result) []string {
	var reasons []string
	if res.Refused {
		reasons = append(reasons, ReasonRefused)
	} else if res.Confidence.Overall < p.ConfidenceBelow {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if res.Metadata.NormalizedQuestion != "" && res.Metadata.NormalizationCoverage < p.CoverageBelow {
		reasons = append(reasons, ReasonLowCoverage)
	}
	return reasons
}

// Recorder queues results selected by Policy. It satisfies
// intent.Recorder.
type Recorder struct {
	Store  *Store
	Policy Policy
}

func (r *Recorder) Record(ctx context.Context, req intent.Request, res *intent.Result) error {
	reasons := r.Policy.Reasons(res)
	if len(reasons) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.Store.Save(&Entry{
		ID:            res.Metadata.RequestID,
		Status:        StatusPending,
		Reasons:       reasons,
		Question:      req.Question,
		Tenant:        intent.TenantOf(req.TenantContext),
		Language:      res.Metadata.DetectedLanguage,
		Coverage:      res.Metadata.NormalizationCoverage,
		Taxonomy:      res.Metadata.TaxonomyVersion,
		Intent:        res.Intent,
		Subject:       res.Subject,
		Measure:       res.Measure,
		Confidence:    res.Confidence.Overall,
		RefusalReason: res.RefusalReason,
		Corrections:   res.Metadata.CorrectionsApplied,
	})
}
