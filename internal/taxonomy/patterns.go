package taxonomy

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/shahar-caura/salestalk/internal/textutil"
)

const sep = `[\s_-]+`

// Patterns holds the matchers compiled from a version's data tables.
// Every method folds its input first, so offsets refer to the folded text.
type Patterns struct {
	top, bottom *regexp.Regexp
	dims        []dimMatcher
	phrases     []phraseMatcher
	dynamic     *regexp.Regexp
	dynamicBy   map[string]DynamicPeriod
	periods     *regexp.Regexp
	periodBy    map[string]TimeToken
	windows     *regexp.Regexp
	windowBy    map[string]TimeToken
	measures    *regexp.Regexp
	measureBy   map[string]string
	cues        []*regexp.Regexp
	granRank    map[string]int
}

type dimMatcher struct {
	name   string
	res    []*regexp.Regexp
	lookup map[string]string
}

type phraseMatcher struct {
	re     *regexp.Regexp
	phrase TimePhrase
}

// phrase turns a vocabulary entry into a pattern that accepts spaces,
// hyphens or underscores between words.
func phrase(s string) string {
	parts := strings.FieldsFunc(textutil.Fold(s), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	})
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, sep)
}

// alternation joins phrases longest first so the longest spelling wins.
func alternation(items []string) string {
	seen := make(map[string]bool)
	var pats []string
	for _, it := range items {
		p := phrase(it)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		pats = append(pats, p)
	}
	slices.SortStableFunc(pats, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	return strings.Join(pats, "|")
}

func compilePatterns(v *Version) (*Patterns, []error) {
	var errs []error
	compile := func(what, expr string) *regexp.Regexp {
		re, err := regexp.Compile(`(?i)` + expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrIntegrity, what, err))
			return nil
		}
		return re
	}

	p := &Patterns{
		dynamicBy: make(map[string]DynamicPeriod),
		periodBy:  make(map[string]TimeToken),
		windowBy:  make(map[string]TimeToken),
		measureBy: make(map[string]string),
		granRank:  make(map[string]int),
	}
	for i, g := range v.time.Granularities {
		p.granRank[g] = i
	}
	p.top = compile("rank top triggers", `\b(?:`+alternation(v.rank.TopTriggers)+`)[\s-]*(\d{1,6})\b`)
	p.bottom = compile("rank bottom triggers", `\b(?:`+alternation(v.rank.BottomTriggers)+`)[\s-]*(\d{1,6})\b`)

	for i, d := range v.dimensions {
		surfaces := slices.Clone(d.Values)
		for syn := range d.Synonyms {
			surfaces = append(surfaces, syn)
		}
		slices.Sort(surfaces)
		vals := alternation(surfaces)
		m := dimMatcher{name: d.Name, lookup: v.dimValues[i]}
		if len(d.Prepositions) > 0 {
			m.res = append(m.res, compile("dimension "+d.Name, `\b(?:`+alternation(d.Prepositions)+`)\s+(?:the\s+)?(`+vals+`)\b`))
		}
		if len(d.Nouns) > 0 {
			nouns := alternation(d.Nouns)
			m.res = append(m.res,
				compile("dimension "+d.Name, `\b(`+vals+`)\s+(?:`+nouns+`)\b`),
				compile("dimension "+d.Name, `\b(?:`+nouns+`)\s+(?:who|that|which)\s+(?:are|is|were)\s+(`+vals+`)\b`),
			)
		}
		if d.Bare {
			m.res = append(m.res, compile("dimension "+d.Name, `\b(`+vals+`)\b`))
		}
		p.dims = append(p.dims, m)
	}

	for _, ph := range v.time.Phrases {
		p.phrases = append(p.phrases, phraseMatcher{re: compile("time phrase", `\b(?:`+ph.Pattern+`)\b`), phrase: ph})
	}
	if len(v.time.DynamicPeriods) > 0 {
		var prefixes []string
		for _, d := range v.time.DynamicPeriods {
			prefixes = append(prefixes, d.Prefix)
			p.dynamicBy[textutil.Key(d.Prefix)] = d
		}
		p.dynamic = compile("dynamic periods", `\b(`+alternation(prefixes)+`)[\s_-]*((?:19|20)\d\d)\b`)
	}
	p.periods, p.periodBy = tokenMatcher(compile, "periods", v.time.Periods)
	p.windows, p.windowBy = tokenMatcher(compile, "windows", v.time.Windows)

	var surfaces []string
	for _, m := range v.measures {
		for _, s := range append([]string{m.Name}, m.Aliases...) {
			if v.generic[textutil.Key(s)] {
				continue
			}
			surfaces = append(surfaces, s)
			p.measureBy[textutil.Key(s)] = m.Name
		}
	}
	p.measures = compile("measures", `\b(?:`+alternation(surfaces)+`)\b`)

	for _, r := range v.rules {
		if len(r.Cues) == 0 {
			p.cues = append(p.cues, nil)
			continue
		}
		p.cues = append(p.cues, compile("intent cues "+r.Intent, `\b(?:`+alternation(r.Cues)+`)\b`))
	}
	return p, errs
}

func tokenMatcher(compile func(string, string) *regexp.Regexp, what string, tokens []TimeToken) (*regexp.Regexp, map[string]TimeToken) {
	by := make(map[string]TimeToken, len(tokens))
	if len(tokens) == 0 {
		return nil, by
	}
	var names []string
	for _, t := range tokens {
		names = append(names, t.Token)
		by[textutil.Key(t.Token)] = t
	}
	return compile(what, `\b(?:`+alternation(names)+`)\b`), by
}

var yearRe = regexp.MustCompile(`^(?:19|20)\d\d$`)

// Rank extracts an explicit "top 5" or "bottom 10" from text. A year after
// a trigger ("highest 2024 revenue") is not a limit.
func (p *Patterns) Rank(text string) (limit int, direction string, ok bool) {
	text = textutil.Fold(text)
	best := -1
	for _, c := range []struct {
		re  *regexp.Regexp
		dir string
	}{{p.top, "top"}, {p.bottom, "bottom"}} {
		for _, m := range c.re.FindAllStringSubmatchIndex(text, -1) {
			if best >= 0 && m[0] >= best {
				break
			}
			digits := text[m[2]:m[3]]
			if yearRe.MatchString(digits) {
				continue
			}
			n, err := strconv.Atoi(digits)
			if err != nil {
				continue
			}
			best, limit, direction, ok = m[0], n, c.dir, true
			break
		}
	}
	return limit, direction, ok
}

// DimensionMatch is one dimension value found in question text.
type DimensionMatch struct {
	Dimension  string
	Value      string
	Start, End int
}

// Dimensions finds dimension values in text. Dimensions are tried in
// taxonomy order and a span claimed by an earlier dimension cannot be
// claimed by a later one, which makes precedence explicit when a word is
// valid for more than one dimension.
func (p *Patterns) Dimensions(text string) []DimensionMatch {
	text = textutil.Fold(text)
	var claimed [][2]int
	overlaps := func(s, e int) bool {
		for _, c := range claimed {
			if s < c[1] && c[0] < e {
				return true
			}
		}
		return false
	}
	var out []DimensionMatch
	for _, d := range p.dims {
		seen := make(map[string]bool)
		for _, re := range d.res {
			for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
				s, e := m[2], m[3]
				if overlaps(s, e) {
					continue
				}
				val, ok := d.lookup[textutil.Key(text[s:e])]
				if !ok {
					continue
				}
				claimed = append(claimed, [2]int{s, e})
				if seen[val] {
					continue
				}
				seen[val] = true
				out = append(out, DimensionMatch{Dimension: d.name, Value: val, Start: s, End: e})
			}
		}
	}
	return out
}

// TimeMatch is the time scope found in question text.
type TimeMatch struct {
	Period      string
	Window      string
	Granularity string
}

func (t TimeMatch) complete() bool {
	return t.Period != "" && t.Window != "" && t.Granularity != ""
}

// Time extracts time tokens from text. Phrases are tried first, then
// year-suffixed periods, then literal tokens. A field is set by the first
// matcher that finds it. Without an explicit granularity the finest one
// implied by the matched tokens is used.
func (p *Patterns) Time(text string) TimeMatch {
	text = textutil.Fold(text)
	var tm TimeMatch
	var implied []string
	for _, ph := range p.phrases {
		if tm.complete() {
			return tm
		}
		if !ph.re.MatchString(text) {
			continue
		}
		if tm.Period == "" && ph.phrase.Period != "" {
			t := p.periodBy[textutil.Key(ph.phrase.Period)]
			tm.Period = t.Token
			implied = append(implied, t.Granularity)
		}
		if tm.Window == "" && ph.phrase.Window != "" {
			t := p.windowBy[textutil.Key(ph.phrase.Window)]
			tm.Window = t.Token
			implied = append(implied, t.Granularity)
		}
		if tm.Granularity == "" && ph.phrase.Granularity != "" {
			tm.Granularity = ph.phrase.Granularity
		}
	}
	if tm.Period == "" && p.dynamic != nil {
		if m := p.dynamic.FindStringSubmatch(text); m != nil {
			d := p.dynamicBy[textutil.Key(m[1])]
			tm.Period = FormatDynamic(d, m[2])
			implied = append(implied, d.Granularity)
		}
	}
	if tm.Period == "" && p.periods != nil {
		if m := p.periods.FindString(text); m != "" {
			t := p.periodBy[textutil.Key(m)]
			tm.Period = t.Token
			implied = append(implied, t.Granularity)
		}
	}
	if tm.Window == "" && p.windows != nil {
		if m := p.windows.FindString(text); m != "" {
			t := p.windowBy[textutil.Key(m)]
			tm.Window = t.Token
			implied = append(implied, t.Granularity)
		}
	}
	if tm.Granularity == "" {
		tm.Granularity = p.finest(implied)
	}
	return tm
}

func (p *Patterns) finest(grans []string) string {
	best, rank := "", len(p.granRank)
	for _, g := range grans {
		if r, ok := p.granRank[g]; ok && r < rank {
			best, rank = g, r
		}
	}
	return best
}

// Measures lists the distinct measures named in text, in order of
// appearance. Generic placeholders are never reported.
func (p *Patterns) Measures(text string) []string {
	text = textutil.Fold(text)
	var out []string
	for _, m := range p.measures.FindAllString(text, -1) {
		name := p.measureBy[textutil.Key(m)]
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Cue reports whether the cues of intent rule i appear in text.
func (p *Patterns) Cue(i int, text string) bool {
	if i < 0 || i >= len(p.cues) || p.cues[i] == nil {
		return false
	}
	return p.cues[i].MatchString(textutil.Fold(text))
}
