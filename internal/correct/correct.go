// Package correct applies deterministic, taxonomy-driven fixes to a model
// record. Nothing here calls a model.
package correct

import (
	"github.com/shahar-caura/salestalk/internal/model"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

type rule func(rec *model.Record, question string, v *taxonomy.Version, log *model.Log)

// rules run in this order.
var rules = []rule{
	metricLeak,
	measureAlias,
	fillTime,
	extractDimensions,
	intentCues,
}

// Apply runs every rule against a copy of rec. question is the text the
// model saw, in canonical vocabulary.
func Apply(rec model.Record, question string, v *taxonomy.Version) (model.Record, model.Log) {
	out := rec.Clone()
	var log model.Log
	for _, r := range rules {
		r(&out, question, v, &log)
	}
	return out, log
}

// metricLeak moves a measure found in the subject field to the measure's
// owning subject.
func metricLeak(rec *model.Record, _ string, v *taxonomy.Version, log *model.Log) {
	name, ok := v.ResolveMeasure(rec.Subject)
	if !ok {
		return
	}
	m, _ := v.Measure(name)
	if s, isSubject := v.ResolveSubject(rec.Subject); isSubject && s == m.Subject {
		return
	}
	log.Add(model.PassCorrect, model.ComponentSubject, "metric_leak", "%s->%s", rec.Subject, m.Subject)
	if rec.Measure == "" || v.IsGenericMeasure(rec.Measure) {
		log.Add(model.PassCorrect, model.ComponentMeasure, "measure_from_subject", "%s", name)
		rec.Measure = name
	}
	rec.Subject = m.Subject
}

// measureAlias canonicalizes the measure, or takes it from the question
// when the model's measure is unknown or generic and the question names
// exactly one measure.
func measureAlias(rec *model.Record, question string, v *taxonomy.Version, log *model.Log) {
	if name, ok := v.ResolveMeasure(rec.Measure); ok {
		if name != rec.Measure {
			log.AddTrivial(model.PassCorrect, model.ComponentMeasure, "measure_alias", "%s->%s", rec.Measure, name)
			rec.Measure = name
		}
		return
	}
	mentioned := v.Patterns().Measures(question)
	if len(mentioned) != 1 {
		return
	}
	log.Add(model.PassCorrect, model.ComponentMeasure, "measure_from_question", "%s->%s", rec.Measure, mentioned[0])
	rec.Measure = mentioned[0]
}

// fillTime fills missing time fields from the question and replaces
// fields the taxonomy does not know when the question names a known one.
func fillTime(rec *model.Record, question string, v *taxonomy.Version, log *model.Log) {
	tm := v.Patterns().Time(question)
	t := &rec.Time

	if tm.Period != "" && len(t.Periods) == 0 {
		switch _, known := v.CanonicalPeriod(t.Period); {
		case t.Period == "":
			log.Add(model.PassCorrect, model.ComponentTime, "time_filled", "period=%s", tm.Period)
			t.Period = tm.Period
		case !known:
			log.Add(model.PassCorrect, model.ComponentTime, "time_upgraded", "period=%s->%s", t.Period, tm.Period)
			t.Period = tm.Period
		}
	}
	if tm.Window != "" {
		switch _, known := v.CanonicalWindow(t.Window); {
		case t.Window == "":
			log.Add(model.PassCorrect, model.ComponentTime, "time_filled", "window=%s", tm.Window)
			t.Window = tm.Window
		case !known:
			log.Add(model.PassCorrect, model.ComponentTime, "time_upgraded", "window=%s->%s", t.Window, tm.Window)
			t.Window = tm.Window
		}
	}
	if tm.Granularity != "" && t.Granularity == "" {
		log.Add(model.PassCorrect, model.ComponentTime, "time_filled", "granularity=%s", tm.Granularity)
		t.Granularity = tm.Granularity
	}
}

// extractDimensions adds rank fields and dimension filters found in the
// question that the model left out. Filters the model set are kept.
func extractDimensions(rec *model.Record, question string, v *taxonomy.Version, log *model.Log) {
	p := v.Patterns()
	d := &rec.Dimension
	if limit, dir, ok := p.Rank(question); ok {
		if d.Limit <= 0 {
			log.Add(model.PassCorrect, model.ComponentDimension, "rank_extracted", "limit=%d", limit)
			d.Limit = limit
		}
		if d.Direction == "" {
			log.Add(model.PassCorrect, model.ComponentDimension, "rank_extracted", "direction=%s", dir)
			d.Direction = dir
		}
	}

	found := make(map[string][]string)
	var order []string
	for _, m := range p.Dimensions(question) {
		if hasDimension(*d, m.Dimension, v) {
			continue
		}
		if _, ok := found[m.Dimension]; !ok {
			order = append(order, m.Dimension)
		}
		found[m.Dimension] = append(found[m.Dimension], m.Value)
	}
	for _, name := range order {
		for _, val := range found[name] {
			log.Add(model.PassCorrect, model.ComponentDimension, "dimension_extracted", "%s=%s", name, val)
		}
		d.Set(name, found[name]...)
	}
}

// hasDimension reports whether the record already filters on dim under
// any spelling of its name.
func hasDimension(d model.Dimension, dim string, v *taxonomy.Version) bool {
	for key, vals := range d.Values {
		if len(vals) == 0 {
			continue
		}
		if def, ok := v.Dimension(key); ok && def.Name == dim {
			return true
		}
	}
	return false
}

func intentCues(rec *model.Record, question string, v *taxonomy.Version, log *model.Log) {
	p := v.Patterns()
	for i, r := range v.IntentRules() {
		if r.Intent == rec.Intent {
			continue
		}
		if !p.Cue(i, question) && !requiresMet(r.Requires, rec.Dimension, v) {
			continue
		}
		log.Add(model.PassCorrect, model.ComponentIntent, "intent_cue", "%s->%s", rec.Intent, r.Intent)
		rec.Intent = r.Intent
	}
}

func requiresMet(keys []string, d model.Dimension, v *taxonomy.Version) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		switch k {
		case "limit":
			if d.Limit <= 0 {
				return false
			}
		case "direction":
			if d.Direction == "" {
				return false
			}
		default:
			present := false
			for key, vals := range d.Values {
				if len(vals) == 0 {
					continue
				}
				if p, ok := v.DimensionPassthrough(key); ok && p.Key == k {
					present = true
				} else if def, ok := v.Dimension(key); ok && def.Name == k {
					present = true
				}
			}
			if !present {
				return false
			}
		}
	}
	return true
}
