// Package taxonomy loads versioned business vocabulary and answers lookups
// against it. A *Version is immutable once Load returns and is safe for
// concurrent use without locking.
package taxonomy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shahar-caura/salestalk/internal/textutil"
)

// Version is one loaded taxonomy snapshot.
type Version struct {
	Env    string
	Name   string
	Digest string

	intents    []Intent
	subjects   []Subject
	measures   []Measure
	dimensions []Dimension
	rank       Rank
	time       TimeVocabulary
	rules      []IntentRule
	canonical  string
	languages  []Language

	intentIdx       map[string]int
	subjectIdx      map[string]int
	measureIdx      map[string]int
	dimIdx          map[string]int
	dimValues       []map[string]string
	dimPassthrough  map[string]Passthrough
	passthroughs    []Passthrough
	generic         map[string]bool
	periodIdx       map[string]TimeToken
	windowIdx       map[string]TimeToken
	granIdx         map[string]int
	dynamic         map[string]DynamicPeriod
	timePassthrough map[string]bool
	canonicalWords  map[string]bool
	patterns        *Patterns
}

// ID identifies the snapshot, including its content digest.
func (v *Version) ID() string {
	return fmt.Sprintf("%s/%s@%s", v.Env, v.Name, v.Digest)
}

func (v *Version) addWord(s string) {
	for _, w := range textutil.Words(textutil.Fold(s)) {
		v.canonicalWords[w.Word] = true
	}
	v.canonicalWords[textutil.Key(s)] = true
}

// dimKey folds a dimension name so "productLine" and "product_line" match.
func dimKey(s string) string {
	return strings.ReplaceAll(textutil.Key(s), "_", "")
}

func (v *Version) Intents() []Intent { return slices.Clone(v.intents) }
func (v *Version) Subjects() []Subject { return slices.Clone(v.subjects) }
func (v *Version) Measures() []Measure { return slices.Clone(v.measures) }

// Dimensions returns the dimension vocabularies in precedence order.
func (v *Version) Dimensions() []Dimension { return slices.Clone(v.dimensions) }

func (v *Version) Rank() Rank { return v.rank }
func (v *Version) IntentRules() []IntentRule { return slices.Clone(v.rules) }
func (v *Version) Patterns() *Patterns { return v.patterns }

// ResolveIntent maps any spelling of an intent to its canonical name.
func (v *Version) ResolveIntent(s string) (string, bool) {
	i, ok := v.intentIdx[textutil.Key(s)]
	if !ok {
		return "", false
	}
	return v.intents[i].Name, true
}

// ResolveSubject maps a subject name or alias to its canonical name.
func (v *Version) ResolveSubject(s string) (string, bool) {
	i, ok := v.subjectIdx[textutil.Key(s)]
	if !ok {
		return "", false
	}
	return v.subjects[i].Name, true
}

// ResolveMeasure maps a measure name or alias to its canonical name.
func (v *Version) ResolveMeasure(s string) (string, bool) {
	i, ok := v.measureIdx[textutil.Key(s)]
	if !ok {
		return "", false
	}
	return v.measures[i].Name, true
}

// Subject returns the definition of a canonical subject.
func (v *Version) Subject(name string) (Subject, bool) {
	i, ok := v.subjectIdx[textutil.Key(name)]
	if !ok || v.subjects[i].Name != name {
		return Subject{}, false
	}
	return v.subjects[i], true
}

// Measure returns the definition of a canonical measure.
func (v *Version) Measure(name string) (Measure, bool) {
	i, ok := v.measureIdx[textutil.Key(name)]
	if !ok || v.measures[i].Name != name {
		return Measure{}, false
	}
	return v.measures[i], true
}

// IsMeasureName reports whether s is exactly a measure's canonical name,
// not one of its aliases.
func (v *Version) IsMeasureName(s string) bool {
	i, ok := v.measureIdx[textutil.Key(s)]
	return ok && textutil.Key(v.measures[i].Name) == textutil.Key(s)
}

// IsGenericMeasure reports placeholder measures such as "value" or "total".
func (v *Version) IsGenericMeasure(s string) bool {
	return v.generic[textutil.Key(s)]
}

// AllowsIntent reports whether intent is allowed for subject.
func (v *Version) AllowsIntent(subject, intent string) bool {
	s, ok := v.Subject(subject)
	return ok && slices.Contains(s.Intents, intent)
}

// Dimension returns the vocabulary for a dimension name in any spelling.
func (v *Version) Dimension(name string) (Dimension, bool) {
	i, ok := v.dimIdx[dimKey(name)]
	if !ok {
		return Dimension{}, false
	}
	return v.dimensions[i], true
}

// DimensionValues lists the canonical values of a dimension.
func (v *Version) DimensionValues(name string) []string {
	d, ok := v.Dimension(name)
	if !ok {
		return nil
	}
	return slices.Clone(d.Values)
}

// CanonicalDimensionValue maps a value or synonym, in any case or
// separator style, to its canonical value.
func (v *Version) CanonicalDimensionValue(dim, raw string) (string, bool) {
	i, ok := v.dimIdx[dimKey(dim)]
	if !ok {
		return "", false
	}
	val, ok := v.dimValues[i][textutil.Key(raw)]
	return val, ok
}

// DimensionPassthrough looks up a passthrough key such as breakdown_by in
// any spelling.
func (v *Version) DimensionPassthrough(key string) (Passthrough, bool) {
	p, ok := v.dimPassthrough[dimKey(key)]
	return p, ok
}

// Passthroughs lists the passthrough keys in declaration order.
func (v *Version) Passthroughs() []Passthrough { return slices.Clone(v.passthroughs) }

// RankLimit returns the taxonomy cap for rank limits.
func (v *Version) RankLimit() int { return v.rank.MaxLimit }

// TimeTokens lists the canonical time vocabulary.
func (v *Version) TimeTokens() TimeTokens {
	tt := TimeTokens{Granularities: slices.Clone(v.time.Granularities)}
	for _, p := range v.time.Periods {
		tt.Periods = append(tt.Periods, p.Token)
	}
	for _, w := range v.time.Windows {
		tt.Windows = append(tt.Windows, w.Token)
	}
	return tt
}

// DynamicPeriods lists the year-suffixed period prefixes.
func (v *Version) DynamicPeriods() []DynamicPeriod { return slices.Clone(v.time.DynamicPeriods) }

// CanonicalPeriod maps a period in any spelling to its canonical token and
// implied granularity. Year-suffixed periods are rendered in their
// declared style.
func (v *Version) CanonicalPeriod(raw string) (TimeToken, bool) {
	k := textutil.Key(raw)
	if t, ok := v.periodIdx[k]; ok {
		return t, true
	}
	return v.dynamicPeriod(k)
}

func (v *Version) dynamicPeriod(k string) (TimeToken, bool) {
	i := strings.LastIndexByte(k, '_')
	var prefix, year string
	switch {
	case i > 0:
		prefix, year = k[:i], k[i+1:]
	case len(k) > 4:
		prefix, year = k[:len(k)-4], k[len(k)-4:]
	default:
		return TimeToken{}, false
	}
	if !isYear(year) {
		return TimeToken{}, false
	}
	d, ok := v.dynamic[prefix]
	if !ok {
		return TimeToken{}, false
	}
	return TimeToken{Token: FormatDynamic(d, year), Granularity: d.Granularity}, true
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatDynamic renders prefix and year in the period's style.
func FormatDynamic(d DynamicPeriod, year string) string {
	prefix := textutil.Key(d.Prefix)
	switch d.Style {
	case StyleUpper:
		return strings.ToUpper(strings.ReplaceAll(prefix, "_", " ")) + " " + year
	case StyleTitle:
		words := strings.Split(prefix, "_")
		for i, w := range words {
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
		return strings.Join(words, " ") + " " + year
	default:
		return prefix + "_" + year
	}
}

// CanonicalWindow maps a window in any spelling to its canonical token.
func (v *Version) CanonicalWindow(raw string) (TimeToken, bool) {
	t, ok := v.windowIdx[textutil.Key(raw)]
	return t, ok
}

// CanonicalGranularity maps "Months" or "month" to "month".
func (v *Version) CanonicalGranularity(raw string) (string, bool) {
	k := textutil.Key(raw)
	if i, ok := v.granIdx[k]; ok {
		return v.time.Granularities[i], true
	}
	if t, ok := strings.CutSuffix(k, "s"); ok {
		if i, ok := v.granIdx[t]; ok {
			return v.time.Granularities[i], true
		}
	}
	return "", false
}

// Finer returns whichever granularity is more specific. Unknown values
// lose to known ones.
func (v *Version) Finer(a, b string) string {
	ia, oka := v.granIdx[textutil.Key(a)]
	ib, okb := v.granIdx[textutil.Key(b)]
	switch {
	case !oka:
		return b
	case !okb:
		return a
	case ib < ia:
		return b
	default:
		return a
	}
}

// IsTimePassthrough reports keys such as "comparison" that are kept as is.
func (v *Version) IsTimePassthrough(key string) bool { return v.timePassthrough[key] }

// Canonical returns the canonical language code.
func (v *Version) Canonical() string { return v.canonical }

// Languages returns every supported language, canonical included.
func (v *Version) Languages() []Language { return slices.Clone(v.languages) }

// Language returns a supported language by code.
func (v *Version) Language(code string) (Language, bool) {
	for _, l := range v.languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// IsCanonicalWord reports whether a folded word belongs to the canonical
// vocabulary.
func (v *Version) IsCanonicalWord(w string) bool {
	return v.canonicalWords[w]
}
