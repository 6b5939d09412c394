// Package repair re-asks the provider to fix a small set of named defects
// in a classified record. The loop is bounded by a step count.
package repair

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shahar-caura/salestalk/internal/constrain"
	"github.com/shahar-caura/salestalk/internal/model"
	"github.com/shahar-caura/salestalk/internal/provider"
)

// Issue kinds.
const (
	KindUnknownSubject    = "unknown_subject"
	KindUnknownMeasure    = "unknown_measure"
	KindLowCoverage       = "low_normalization_coverage"
	KindNonCanonicalToken = "non_canonical_token"
)

// Issue is one defect the provider can be asked to fix.
type Issue struct {
	Kind   string
	Detail string
}

func (i Issue) String() string {
	if i.Detail == "" {
		return i.Kind
	}
	return i.Kind + ": " + i.Detail
}

// Candidate is a record after parsing, correction and constraint.
type Candidate struct {
	Record   model.Record
	Log      model.Log
	Attempts int
	Refusal  *constrain.RefusalError
}

// Signals carry request facts that do not change between steps.
type Signals struct {
	NonCanonical      bool
	Coverage          float64
	CoverageThreshold float64
	Unmapped          []string
}

// droppedRules are constraint rules that discard a value the model gave.
var droppedRules = map[string]bool{
	"dimension_value_dropped":  true,
	"dimension_dropped":        true,
	"time_period_dropped":      true,
	"time_window_dropped":      true,
	"time_granularity_dropped": true,
}

// Issues lists the defects of c in a stable order.
func Issues(c Candidate, s Signals) []Issue {
	var out []Issue
	if c.Refusal != nil {
		switch c.Refusal.Reason {
		case constrain.ReasonUnknownSubject:
			out = append(out, Issue{Kind: KindUnknownSubject, Detail: c.Refusal.Value})
		case constrain.ReasonUnknownMeasure:
			out = append(out, Issue{Kind: KindUnknownMeasure, Detail: c.Refusal.Value})
		}
	}
	for _, e := range c.Log {
		if e.Pass == model.PassConstrain && droppedRules[e.Rule] {
			out = append(out, Issue{Kind: KindNonCanonicalToken, Detail: e.Detail})
		}
	}
	if s.NonCanonical && s.Coverage < s.CoverageThreshold {
		detail := fmt.Sprintf("%.2f", s.Coverage)
		if len(s.Unmapped) > 0 {
			detail += " unmapped " + strings.Join(s.Unmapped, ", ")
		}
		out = append(out, Issue{Kind: KindLowCoverage, Detail: detail})
	}
	return out
}

// ProcessFunc parses raw provider text and runs the correction and
// constraint passes over it.
type ProcessFunc func(raw string) (Candidate, error)

// PromptFunc builds the correction prompt for one step.
type PromptFunc func(question string, rec model.Record, issues []Issue) string

// Loop is the bounded repair state machine.
type Loop struct {
	Generator provider.Generator
	Process   ProcessFunc
	Prompt    PromptFunc
	MaxSteps  int
}

// Run repairs c until it has no issues or MaxSteps provider calls have
// been made. It returns the best candidate seen and the number of steps
// taken. Provider errors are returned with the best candidate so far; an
// unparsable repair response ends the loop without error.
func (l *Loop) Run(ctx context.Context, question string, s Signals, c Candidate) (Candidate, int, error) {
	cur := c
	cur.Log = slices.Clone(c.Log)
	issues := Issues(cur, s)
	steps := 0

	for steps < l.MaxSteps && len(issues) > 0 {
		if err := ctx.Err(); err != nil {
			return cur, steps, err
		}
		steps++

		raw, err := l.Generator.Generate(ctx, l.Prompt(question, cur.Record, issues))
		if err != nil {
			return cur, steps, fmt.Errorf("repair step %d: %w", steps, err)
		}

		next, err := l.Process(raw)
		if err != nil {
			cur.Log.AddTrivial(model.PassRepair, "", "step_unparsable", "%d", steps)
			cur.Attempts += next.Attempts
			return cur, steps, nil
		}

		nextIssues := Issues(next, s)
		if !better(cur, issues, next, nextIssues) {
			cur.Log.AddTrivial(model.PassRepair, "", "step_rejected", "%d", steps)
			cur.Attempts += next.Attempts
			continue
		}

		var log model.Log
		log = append(log, cur.Log...)
		log.Add(model.PassRepair, "", "step_accepted", "%d", steps)
		log = append(log, next.Log...)
		next.Log = log
		next.Attempts += cur.Attempts
		cur, issues = next, nextIssues
	}
	return cur, steps, nil
}

// better prefers a resolved record over a refused one, then fewer issues.
func better(cur Candidate, curIssues []Issue, next Candidate, nextIssues []Issue) bool {
	switch {
	case cur.Refusal != nil && next.Refusal == nil:
		return true
	case cur.Refusal == nil && next.Refusal != nil:
		return false
	default:
		return len(nextIssues) < len(curIssues)
	}
}
