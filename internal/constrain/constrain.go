// Package constrain forces a record onto the taxonomy in three stages:
// subject and intent, then measure, then dimension and time. A stage that
// cannot resolve its component refuses the record.
package constrain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shahar-caura/salestalk/internal/model"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

// Refusal reasons.
const (
	ReasonUnknownSubject = "unknown_subject"
	ReasonUnknownMeasure = "unknown_measure"
)

// Rank directions.
const (
	DirectionTop    = "top"
	DirectionBottom = "bottom"
)

// RefusalError reports that a stage could not place the record in the
// taxonomy.
type RefusalError struct {
	Reason string
	Value  string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("constrain: %s %q", e.Reason, e.Value)
}

// Options tune stage C.
type Options struct {
	// RankLimitCap overrides the taxonomy's max limit when positive and
	// smaller.
	RankLimitCap int
}

// Apply runs all three stages in order. On refusal it returns the record
// as it stood when the failing stage started.
func Apply(rec model.Record, v *taxonomy.Version, opts Options) (model.Record, model.Log, error) {
	var log model.Log
	out, l, err := SubjectIntent(rec, v)
	log = append(log, l...)
	if err != nil {
		return rec, log, err
	}
	next, l, err := Measure(out, v)
	log = append(log, l...)
	if err != nil {
		return out, log, err
	}
	out, l = Context(next, v, opts)
	log = append(log, l...)
	return out, log, nil
}

// SubjectIntent resolves the subject, inferring it from the measure when
// the subject is unknown, and keeps the intent inside the subject's
// allowed set.
func SubjectIntent(rec model.Record, v *taxonomy.Version) (model.Record, model.Log, error) {
	out := rec.Clone()
	var log model.Log

	if s, ok := v.ResolveSubject(out.Subject); ok {
		if s != out.Subject {
			log.AddTrivial(model.PassConstrain, model.ComponentSubject, "subject_canonicalized", "%s->%s", out.Subject, s)
			out.Subject = s
		}
	} else if name, ok := v.ResolveMeasure(out.Measure); ok {
		m, _ := v.Measure(name)
		log.Add(model.PassConstrain, model.ComponentSubject, "subject_inferred_from_measure", "%s->%s", name, m.Subject)
		out.Subject = m.Subject
	} else {
		return rec, log, &RefusalError{Reason: ReasonUnknownSubject, Value: rec.Subject}
	}

	snapIntent(&out, v, &log)
	return out, log, nil
}

// snapIntent canonicalizes the intent and falls back to the subject's
// default intent when it is unknown or not allowed.
func snapIntent(rec *model.Record, v *taxonomy.Version, log *model.Log) {
	s, _ := v.Subject(rec.Subject)
	in, ok := v.ResolveIntent(rec.Intent)
	if ok && in != rec.Intent {
		log.AddTrivial(model.PassConstrain, model.ComponentIntent, "intent_canonicalized", "%s->%s", rec.Intent, in)
		rec.Intent = in
	}
	if ok && slices.Contains(s.Intents, in) {
		return
	}
	def := s.Intents[0]
	if rec.Intent == "" {
		log.Add(model.PassConstrain, model.ComponentIntent, "intent_defaulted", "%s", def)
	} else {
		log.Add(model.PassConstrain, model.ComponentIntent, "intent_restricted", "%s->%s", rec.Intent, def)
	}
	rec.Intent = def
}

// Measure resolves the measure and moves the subject to the measure's
// owner when they disagree. It is a no-op on an already valid pair.
func Measure(rec model.Record, v *taxonomy.Version) (model.Record, model.Log, error) {
	out := rec.Clone()
	var log model.Log

	name, ok := v.ResolveMeasure(out.Measure)
	if !ok {
		return rec, log, &RefusalError{Reason: ReasonUnknownMeasure, Value: rec.Measure}
	}
	if name != out.Measure {
		log.AddTrivial(model.PassConstrain, model.ComponentMeasure, "measure_canonicalized", "%s->%s", out.Measure, name)
		out.Measure = name
	}
	m, _ := v.Measure(name)
	if m.Subject != out.Subject {
		log.Add(model.PassConstrain, model.ComponentSubject, "subject_reassigned_for_measure", "%s->%s", out.Subject, m.Subject)
		out.Subject = m.Subject
		snapIntent(&out, v, &log)
	}
	return out, log, nil
}

// Context sanitizes dimension filters, rank fields and time. Values the
// taxonomy does not know are dropped; it never refuses.
func Context(rec model.Record, v *taxonomy.Version, opts Options) (model.Record, model.Log) {
	out := rec.Clone()
	var log model.Log
	out.Dimension = dimensions(rec.Dimension, v, opts, &log)
	out.Time = timeOf(rec.Time, v, &log)
	return out, log
}

func dimensions(in model.Dimension, v *taxonomy.Version, opts Options, log *model.Log) model.Dimension {
	var out model.Dimension

	for _, key := range in.Keys() {
		vals := in.Values[key]
		if def, ok := v.Dimension(key); ok {
			if key != def.Name {
				log.AddTrivial(model.PassConstrain, model.ComponentDimension, "dimension_key_canonicalized", "%s->%s", key, def.Name)
			}
			var keep []string
			for _, raw := range vals {
				c, ok := v.CanonicalDimensionValue(def.Name, raw)
				if !ok {
					log.Add(model.PassConstrain, model.ComponentDimension, "dimension_value_dropped", "%s=%s", def.Name, raw)
					continue
				}
				if c != raw {
					log.AddTrivial(model.PassConstrain, model.ComponentDimension, "dimension_value_canonicalized", "%s=%s->%s", def.Name, raw, c)
				}
				if !slices.Contains(keep, c) {
					keep = append(keep, c)
				}
			}
			if len(keep) > 0 {
				out.Set(def.Name, append(out.Values[def.Name], keep...)...)
			}
			continue
		}

		p, ok := v.DimensionPassthrough(key)
		if !ok {
			log.Add(model.PassConstrain, model.ComponentDimension, "dimension_dropped", "%s", key)
			continue
		}
		if keep := passthrough(p, vals, v, log); len(keep) > 0 {
			out.Set(p.Key, keep...)
		}
	}

	out.Limit = in.Limit
	switch limit := rankCap(v, opts); {
	case in.Limit < 0:
		log.Add(model.PassConstrain, model.ComponentDimension, "rank_limit_dropped", "%d", in.Limit)
		out.Limit = 0
	case limit > 0 && in.Limit > limit:
		log.Add(model.PassConstrain, model.ComponentDimension, "rank_limit_capped", "%d->%d", in.Limit, limit)
		out.Limit = limit
	}

	if in.Direction != "" {
		dir := strings.ToLower(strings.TrimSpace(in.Direction))
		switch dir {
		case DirectionTop, DirectionBottom:
			if dir != in.Direction {
				log.AddTrivial(model.PassConstrain, model.ComponentDimension, "rank_direction_canonicalized", "%s->%s", in.Direction, dir)
			}
			out.Direction = dir
		default:
			log.Add(model.PassConstrain, model.ComponentDimension, "rank_direction_dropped", "%s", in.Direction)
		}
	}
	return out
}

func rankCap(v *taxonomy.Version, opts Options) int {
	limit := v.RankLimit()
	if opts.RankLimitCap > 0 && (limit <= 0 || opts.RankLimitCap < limit) {
		limit = opts.RankLimitCap
	}
	return limit
}

// passthrough keeps the values of a non-filter key that name what the key
// declares: a dimension, a measure, or anything non-empty.
func passthrough(p taxonomy.Passthrough, vals []string, v *taxonomy.Version, log *model.Log) []string {
	var keep []string
	for _, raw := range vals {
		val := strings.TrimSpace(raw)
		if val == "" {
			log.AddTrivial(model.PassConstrain, model.ComponentDimension, "passthrough_empty_dropped", "%s", p.Key)
			continue
		}
		switch p.Kind {
		case taxonomy.KindDimension:
			def, ok := v.Dimension(val)
			if !ok {
				log.Add(model.PassConstrain, model.ComponentDimension, "passthrough_value_dropped", "%s=%s", p.Key, val)
				continue
			}
			val = def.Name
		case taxonomy.KindMeasure:
			name, ok := v.ResolveMeasure(val)
			if !ok {
				log.Add(model.PassConstrain, model.ComponentDimension, "passthrough_value_dropped", "%s=%s", p.Key, val)
				continue
			}
			val = name
		}
		if !slices.Contains(keep, val) {
			keep = append(keep, val)
		}
	}
	return keep
}

func timeOf(in model.Time, v *taxonomy.Version, log *model.Log) model.Time {
	var out model.Time
	var implied []string

	if in.Period != "" {
		if tok, ok := v.CanonicalPeriod(in.Period); ok {
			if tok.Token != in.Period {
				log.AddTrivial(model.PassConstrain, model.ComponentTime, "time_period_canonicalized", "%s->%s", in.Period, tok.Token)
			}
			out.Period = tok.Token
			implied = append(implied, tok.Granularity)
		} else {
			log.Add(model.PassConstrain, model.ComponentTime, "time_period_dropped", "%s", in.Period)
		}
	}

	for _, raw := range in.Periods {
		tok, ok := v.CanonicalPeriod(raw)
		if !ok {
			log.Add(model.PassConstrain, model.ComponentTime, "time_period_dropped", "%s", raw)
			continue
		}
		if tok.Token != raw {
			log.AddTrivial(model.PassConstrain, model.ComponentTime, "time_period_canonicalized", "%s->%s", raw, tok.Token)
		}
		if !slices.Contains(out.Periods, tok.Token) {
			out.Periods = append(out.Periods, tok.Token)
		}
		implied = append(implied, tok.Granularity)
	}

	if in.Window != "" {
		if tok, ok := v.CanonicalWindow(in.Window); ok {
			if tok.Token != in.Window {
				log.AddTrivial(model.PassConstrain, model.ComponentTime, "time_window_canonicalized", "%s->%s", in.Window, tok.Token)
			}
			out.Window = tok.Token
			implied = append(implied, tok.Granularity)
		} else {
			log.Add(model.PassConstrain, model.ComponentTime, "time_window_dropped", "%s", in.Window)
		}
	}

	if in.Granularity != "" {
		if g, ok := v.CanonicalGranularity(in.Granularity); ok {
			if g != in.Granularity {
				log.AddTrivial(model.PassConstrain, model.ComponentTime, "time_granularity_canonicalized", "%s->%s", in.Granularity, g)
			}
			out.Granularity = g
		} else {
			log.Add(model.PassConstrain, model.ComponentTime, "time_granularity_dropped", "%s", in.Granularity)
		}
	}
	if out.Granularity == "" && len(implied) > 0 {
		g := implied[0]
		for _, x := range implied[1:] {
			g = v.Finer(g, x)
		}
		if g != "" {
			log.Add(model.PassConstrain, model.ComponentTime, "time_granularity_inferred", "%s", g)
			out.Granularity = g
		}
	}

	for _, k := range sortedKeys(in.Extra) {
		if !v.IsTimePassthrough(k) {
			log.Add(model.PassConstrain, model.ComponentTime, "time_key_dropped", "%s", k)
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]string)
		}
		out.Extra[k] = in.Extra[k]
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
