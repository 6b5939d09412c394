package taxonomy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shahar-caura/salestalk/internal/textutil"
)

var (
	ErrNotFound  = errors.New("taxonomy file not found")
	ErrMalformed = errors.New("taxonomy file malformed")
	ErrIntegrity = errors.New("taxonomy integrity violation")
)

// LoadError reports why a taxonomy version could not be loaded.
type LoadError struct {
	Env     string
	Version string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading taxonomy %s/%s: %v", e.Env, e.Version, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type loader struct {
	fsys fs.FS
	dir  string
	sum  hash.Hash
	errs []error
}

func (l *loader) read(name string, v any, optional bool) bool {
	p := path.Join(l.dir, name)
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return false
		}
		l.errs = append(l.errs, fmt.Errorf("%w: %s: %v", ErrNotFound, p, err))
		return false
	}
	l.sum.Write([]byte(p))
	l.sum.Write(data)
	if err := yaml.Unmarshal(data, v); err != nil {
		l.errs = append(l.errs, fmt.Errorf("%w: %s: %v", ErrMalformed, p, err))
		return false
	}
	return true
}

func (l *loader) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...)))
}

// Load reads <env>/<version> from fsys and checks referential integrity.
// All problems found are reported together in a *LoadError.
func Load(fsys fs.FS, env, version string) (*Version, error) {
	l := &loader{fsys: fsys, dir: path.Join(env, version), sum: sha256.New()}

	var (
		intents    []Intent
		subjects   []Subject
		measures   measuresFile
		dimensions dimensionsFile
		timeVocab  TimeVocabulary
		cues       intentCuesFile
		languages  languagesFile
	)
	l.read("intents.yaml", &intents, false)
	l.read("subjects.yaml", &subjects, false)
	l.read("measures.yaml", &measures, false)
	l.read("dimensions.yaml", &dimensions, false)
	l.read("time.yaml", &timeVocab, false)
	l.read("intent_cues.yaml", &cues, false)
	l.read("languages.yaml", &languages, false)
	if len(l.errs) > 0 {
		return nil, &LoadError{Env: env, Version: version, Err: errors.Join(l.errs...)}
	}

	for i := range languages.Languages {
		lang := &languages.Languages[i]
		if lang.Code != languages.Canonical {
			var lex Lexicon
			if l.read(path.Join("lexicons", lang.Code+".yaml"), &lex, false) {
				lang.Lexicon = &lex
			}
		}
		var ex examplesFile
		if l.read(path.Join("examples", lang.Code+".yaml"), &ex, true) {
			lang.Examples = ex.Examples
		}
	}

	v := &Version{
		Env:        env,
		Name:       version,
		intents:    intents,
		subjects:   subjects,
		measures:   measures.Measures,
		dimensions: dimensions.Dimensions,
		rank:       dimensions.Rank,
		time:       timeVocab,
		rules:      cues.Rules,
		canonical:  languages.Canonical,
		languages:  languages.Languages,
	}
	l.index(v, measures.Generic, dimensions.Passthrough)
	if len(l.errs) == 0 {
		p, errs := compilePatterns(v)
		l.errs = append(l.errs, errs...)
		v.patterns = p
	}
	if len(l.errs) > 0 {
		return nil, &LoadError{Env: env, Version: version, Err: errors.Join(l.errs...)}
	}
	v.Digest = hex.EncodeToString(l.sum.Sum(nil))[:12]
	return v, nil
}

func (l *loader) index(v *Version, generic []string, dimPassthrough []Passthrough) {
	v.intentIdx = make(map[string]int)
	v.subjectIdx = make(map[string]int)
	v.measureIdx = make(map[string]int)
	v.dimIdx = make(map[string]int)
	v.generic = make(map[string]bool)
	v.dimPassthrough = make(map[string]Passthrough)
	v.periodIdx = make(map[string]TimeToken)
	v.windowIdx = make(map[string]TimeToken)
	v.granIdx = make(map[string]int)
	v.timePassthrough = make(map[string]bool)
	v.dynamic = make(map[string]DynamicPeriod)
	v.canonicalWords = make(map[string]bool)

	if len(v.intents) == 0 {
		l.fail("no intents defined")
	}
	if len(v.subjects) == 0 {
		l.fail("no subjects defined")
	}
	if len(v.measures) == 0 {
		l.fail("no measures defined")
	}

	for i, in := range v.intents {
		k := textutil.Key(in.Name)
		if k == "" {
			l.fail("intent %d has no name", i)
			continue
		}
		if _, dup := v.intentIdx[k]; dup {
			l.fail("duplicate intent %q", in.Name)
		}
		v.intentIdx[k] = i
		v.addWord(in.Name)
	}

	for i, m := range v.measures {
		k := textutil.Key(m.Name)
		if k == "" {
			l.fail("measure %d has no name", i)
			continue
		}
		if prev, dup := v.measureIdx[k]; dup {
			l.fail("measure %q collides with %q", m.Name, v.measures[prev].Name)
			continue
		}
		v.measureIdx[k] = i
		v.addWord(m.Name)
	}
	for i, m := range v.measures {
		for _, a := range m.Aliases {
			k := textutil.Key(a)
			if prev, ok := v.measureIdx[k]; ok && prev != i {
				l.fail("alias %q collides between measures %q and %q", a, v.measures[prev].Name, m.Name)
				continue
			}
			v.measureIdx[k] = i
			v.addWord(a)
		}
	}

	for i, s := range v.subjects {
		k := textutil.Key(s.Name)
		if k == "" {
			l.fail("subject %d has no name", i)
			continue
		}
		if _, dup := v.subjectIdx[k]; dup {
			l.fail("duplicate subject %q", s.Name)
		}
		v.subjectIdx[k] = i
		v.addWord(s.Name)
	}
	for i, s := range v.subjects {
		for _, a := range s.Aliases {
			k := textutil.Key(a)
			if prev, ok := v.subjectIdx[k]; ok && prev != i {
				l.fail("alias %q collides between subjects %q and %q", a, v.subjects[prev].Name, s.Name)
				continue
			}
			v.subjectIdx[k] = i
			v.addWord(a)
		}
		if len(s.Intents) == 0 {
			l.fail("subject %q has no intents", s.Name)
		}
		for _, in := range s.Intents {
			if _, ok := v.intentIdx[textutil.Key(in)]; !ok {
				l.fail("subject %q references unknown intent %q", s.Name, in)
			}
		}
		if len(s.Measures) == 0 {
			l.fail("subject %q has no measures", s.Name)
		}
		for _, mn := range s.Measures {
			mi, ok := v.measureIdx[textutil.Key(mn)]
			if !ok || v.measures[mi].Name != mn {
				l.fail("subject %q references unknown measure %q", s.Name, mn)
				continue
			}
			if owner := v.measures[mi].Subject; owner != s.Name {
				l.fail("subject %q lists measure %q owned by %q", s.Name, mn, owner)
			}
		}
	}
	for _, m := range v.measures {
		si, ok := v.subjectIdx[textutil.Key(m.Subject)]
		if !ok || v.subjects[si].Name != m.Subject {
			l.fail("measure %q references unknown subject %q", m.Name, m.Subject)
			continue
		}
		if !slices.Contains(v.subjects[si].Measures, m.Name) {
			l.fail("measure %q is not listed by its subject %q", m.Name, m.Subject)
		}
	}
	// A token naming a measure and a foreign subject would resolve two ways.
	for _, m := range v.measures {
		for _, n := range append([]string{m.Name}, m.Aliases...) {
			si, ok := v.subjectIdx[textutil.Key(n)]
			if ok && v.subjects[si].Name != m.Subject {
				l.fail("measure %q name or alias %q is also subject %q", m.Name, n, v.subjects[si].Name)
			}
		}
	}
	for _, g := range generic {
		v.generic[textutil.Key(g)] = true
	}

	if v.rank.MaxLimit < 1 {
		l.fail("rank.max_limit must be positive")
	}
	if len(v.rank.TopTriggers) == 0 || len(v.rank.BottomTriggers) == 0 {
		l.fail("rank triggers must not be empty")
	}
	for _, t := range append(slices.Clone(v.rank.TopTriggers), v.rank.BottomTriggers...) {
		v.addWord(t)
	}
	v.dimValues = make([]map[string]string, len(v.dimensions))
	for i, d := range v.dimensions {
		k := dimKey(d.Name)
		if k == "" {
			l.fail("dimension %d has no name", i)
			continue
		}
		if _, dup := v.dimIdx[k]; dup {
			l.fail("duplicate dimension %q", d.Name)
		}
		v.dimIdx[k] = i
		if len(d.Values) == 0 {
			l.fail("dimension %q has no values", d.Name)
		}
		vals := make(map[string]string)
		for _, val := range d.Values {
			vals[textutil.Key(val)] = val
			v.addWord(val)
		}
		for syn, target := range d.Synonyms {
			if !slices.Contains(d.Values, target) {
				l.fail("dimension %q synonym %q targets unknown value %q", d.Name, syn, target)
				continue
			}
			vals[textutil.Key(syn)] = target
		}
		v.dimValues[i] = vals
	}
	for _, p := range dimPassthrough {
		switch p.Kind {
		case KindDimension, KindMeasure, KindFree:
		default:
			l.fail("passthrough %q has unknown kind %q", p.Key, p.Kind)
		}
		if _, clash := v.dimIdx[dimKey(p.Key)]; clash {
			l.fail("passthrough %q shadows a dimension", p.Key)
		}
		v.dimPassthrough[dimKey(p.Key)] = p
		v.passthroughs = append(v.passthroughs, p)
	}

	l.indexTime(v)

	for _, r := range v.rules {
		if _, ok := v.intentIdx[textutil.Key(r.Intent)]; !ok {
			l.fail("intent rule references unknown intent %q", r.Intent)
		}
		if len(r.Cues) == 0 && len(r.Requires) == 0 {
			l.fail("intent rule for %q has neither cues nor requires", r.Intent)
		}
	}

	l.indexLanguages(v)
}

func (l *loader) indexTime(v *Version) {
	t := v.time
	if len(t.Granularities) == 0 {
		l.fail("no time granularities defined")
	}
	for i, g := range t.Granularities {
		v.granIdx[textutil.Key(g)] = i
		v.addWord(g)
	}
	checkGran := func(where, g string) {
		if g == "" {
			return
		}
		if _, ok := v.granIdx[textutil.Key(g)]; !ok {
			l.fail("%s references unknown granularity %q", where, g)
		}
	}
	for _, p := range t.Periods {
		checkGran("period "+p.Token, p.Granularity)
		v.periodIdx[textutil.Key(p.Token)] = p
		v.addWord(p.Token)
	}
	for _, w := range t.Windows {
		checkGran("window "+w.Token, w.Granularity)
		v.windowIdx[textutil.Key(w.Token)] = w
		v.addWord(w.Token)
	}
	for _, d := range t.DynamicPeriods {
		switch d.Style {
		case StyleCanonical, StyleUpper, StyleTitle:
		default:
			l.fail("dynamic period %q has unknown style %q", d.Prefix, d.Style)
		}
		checkGran("dynamic period "+d.Prefix, d.Granularity)
		v.dynamic[textutil.Key(d.Prefix)] = d
	}
	for _, ph := range t.Phrases {
		if _, err := regexp.Compile(ph.Pattern); err != nil {
			l.fail("time phrase %q: %v", ph.Pattern, err)
		}
		if ph.Period != "" {
			if _, ok := v.periodIdx[textutil.Key(ph.Period)]; !ok {
				l.fail("time phrase %q references unknown period %q", ph.Pattern, ph.Period)
			}
		}
		if ph.Window != "" {
			if _, ok := v.windowIdx[textutil.Key(ph.Window)]; !ok {
				l.fail("time phrase %q references unknown window %q", ph.Pattern, ph.Window)
			}
		}
		checkGran("time phrase "+ph.Pattern, ph.Granularity)
	}
	for _, p := range t.Passthrough {
		v.timePassthrough[p] = true
	}
}

func (l *loader) indexLanguages(v *Version) {
	found := false
	for _, lang := range v.languages {
		if lang.Code == v.canonical {
			found = true
			for _, w := range lang.Stopwords {
				v.addWord(w)
			}
		}
		if lang.Code != v.canonical && lang.Lexicon == nil {
			l.fail("language %q has no lexicon", lang.Code)
		}
		if lang.Lexicon == nil {
			continue
		}
		for _, cat := range lang.Lexicon.Categories {
			if cat.Name == "" {
				l.fail("lexicon %q has a category without a name", lang.Code)
			}
			seen := make(map[string]string)
			for canonical, aliases := range cat.Entries {
				for _, a := range aliases {
					k := textutil.Fold(a)
					if prev, ok := seen[k]; ok && prev != canonical {
						l.fail("lexicon %q category %q maps %q to both %q and %q", lang.Code, cat.Name, a, prev, canonical)
					}
					seen[k] = canonical
				}
			}
		}
		names := make(map[string]bool)
		for i, p := range lang.Lexicon.Patterns {
			if p.Name == "" {
				l.fail("lexicon %q pattern %d has no name", lang.Code, i)
			} else if names[p.Name] {
				l.fail("lexicon %q has duplicate pattern %q", lang.Code, p.Name)
			}
			names[p.Name] = true
			if p.Pattern == "" || strings.TrimSpace(p.Rewrite) == "" {
				l.fail("lexicon %q pattern %q needs a pattern and a rewrite", lang.Code, p.Name)
				continue
			}
			if _, err := regexp.Compile(p.Pattern); err != nil {
				l.fail("lexicon %q pattern %q: %v", lang.Code, p.Name, err)
			}
		}
		for i, e := range lang.Lexicon.Exemplars {
			if strings.TrimSpace(e.Source) == "" || strings.TrimSpace(e.Rewrite) == "" {
				l.fail("lexicon %q exemplar %d needs a source and a rewrite", lang.Code, i)
			}
		}
	}
	if v.canonical == "" || !found {
		l.fail("canonical language %q is not declared", v.canonical)
	}
}
