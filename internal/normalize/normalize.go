// Package normalize rewrites source-language questions into the canonical
// vocabulary using a version's lexicons.
package normalize

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shahar-caura/salestalk/internal/taxonomy"
	"github.com/shahar-caura/salestalk/internal/textutil"
)

// Result is the outcome of normalizing one question. Results may be shared
// through the cache and must be treated as read-only.
type Result struct {
	Text         string
	Coverage     float64
	Replacements map[string]string
	Categories   []string
	// Unmapped lists source words no lexicon entry covered.
	Unmapped []string

	// Patterns names the phrase rewrites applied. FuzzyScore is set when
	// the rewrite came from an approximate match.
	Patterns   []string
	FuzzyScore float64
	// Exemplar is the source of the exemplar whose rewrite replaced the
	// whole question.
	Exemplar      string
	ExemplarScore float64
	Tags          []string
}

// CategoryPatterns is reported in Categories when a phrase rewrite applied.
const CategoryPatterns = "patterns"

// Options configures a Normalizer.
type Options struct {
	// CacheSize enables an LRU cache of results when positive.
	CacheSize int
	// Rewrite enables phrase patterns and exemplars.
	Rewrite           bool
	FuzzyThreshold    float64
	ExemplarThreshold float64
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{CacheSize: 1024, Rewrite: true, FuzzyThreshold: 0.85, ExemplarThreshold: 0.85}
}

type entry struct {
	canonical string
	category  string
}

type table struct {
	entries   map[string]entry
	maxN      int
	rules     []rule
	exemplars []exemplar
}

// Normalizer holds the compiled lexicons of one taxonomy version.
type Normalizer struct {
	v      *taxonomy.Version
	opts   Options
	tables map[string]*table
	cache  *lru.Cache[string, Result]
}

// New compiles the lexicons of v.
func New(v *taxonomy.Version, opts Options) (*Normalizer, error) {
	n := &Normalizer{v: v, opts: opts, tables: make(map[string]*table)}
	for _, l := range v.Languages() {
		if l.Lexicon == nil {
			continue
		}
		t, err := compile(l.Lexicon)
		if err != nil {
			return nil, fmt.Errorf("lexicon %s: %w", l.Code, err)
		}
		n.tables[l.Code] = t
	}
	if opts.CacheSize > 0 {
		c, err := lru.New[string, Result](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("normalization cache: %w", err)
		}
		n.cache = c
	}
	return n, nil
}

func compile(lex *taxonomy.Lexicon) (*table, error) {
	t := &table{entries: make(map[string]entry)}
	for _, cat := range lex.Categories {
		// Sorted for a stable winner when two canonicals in one category
		// would share a folded alias.
		for _, canonical := range sortedKeys(cat.Entries) {
			for _, alias := range cat.Entries[canonical] {
				key := strings.Join(words(alias), " ")
				if key == "" {
					continue
				}
				if _, taken := t.entries[key]; taken {
					continue
				}
				t.entries[key] = entry{canonical: canonical, category: cat.Name}
				t.maxN = max(t.maxN, strings.Count(key, " ")+1)
			}
		}
	}
	for _, p := range lex.Patterns {
		re, err := regexp.Compile(`(?i)\b(?:` + p.Pattern + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.Name, err)
		}
		r := rule{name: p.Name, re: re, rewrite: p.Rewrite, tags: p.Tags}
		for _, a := range p.Anchors {
			if w := words(a); len(w) > 0 {
				r.anchors = append(r.anchors, anchor{text: strings.Join(w, " "), n: len(w)})
			}
		}
		t.rules = append(t.rules, r)
	}
	for _, e := range lex.Exemplars {
		t.exemplars = append(t.exemplars, exemplar{
			source:  e.Source,
			words:   wordSet(words(e.Source)),
			rewrite: e.Rewrite,
			tags:    e.Tags,
		})
	}
	return t, nil
}

// words folds s and returns its words.
func words(s string) []string {
	spans := textutil.Words(textutil.Fold(s))
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = sp.Word
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Normalize rewrites text from lang into canonical tokens. Canonical text
// is returned unchanged with full coverage.
func (n *Normalizer) Normalize(text, lang string) Result {
	if lang == n.v.Canonical() {
		return Result{Text: text, Coverage: 1}
	}
	if n.cache != nil {
		key := lang + "\x00" + text
		if r, ok := n.cache.Get(key); ok {
			return r
		}
		r := n.normalize(text, lang)
		n.cache.Add(key, r)
		return r
	}
	return n.normalize(text, lang)
}

func (n *Normalizer) normalize(text, lang string) Result {
	folded := textutil.Fold(text)
	res := Result{Text: folded, Replacements: map[string]string{}}
	t, ok := n.tables[lang]
	spans := textutil.Words(folded)

	var phrases map[int]phraseHit
	if ok && n.opts.Rewrite {
		phrases = n.phrases(t, folded, spans, &res)
	}

	covered := make([]bool, len(spans))
	var b strings.Builder
	last := 0
	for i := 0; ok && i < len(spans); {
		if h, hit := phrases[i]; hit {
			start, end := spans[i].Start, spans[h.end-1].End
			b.WriteString(folded[last:start])
			b.WriteString(h.rewrite)
			last = end
			res.Replacements[folded[start:end]] = h.rewrite
			if !slices.Contains(res.Categories, CategoryPatterns) {
				res.Categories = append(res.Categories, CategoryPatterns)
			}
			for j := i; j < h.end; j++ {
				covered[j] = true
			}
			i = h.end
			continue
		}
		matched := false
		for size := min(t.maxN, len(spans)-i); size >= 1; size-- {
			parts := make([]string, size)
			for j := range size {
				parts[j] = spans[i+j].Word
			}
			e, hit := t.entries[strings.Join(parts, " ")]
			if !hit {
				continue
			}
			start, end := spans[i].Start, spans[i+size-1].End
			b.WriteString(folded[last:start])
			b.WriteString(e.canonical)
			last = end
			if src := folded[start:end]; src != e.canonical {
				res.Replacements[src] = e.canonical
			}
			if !slices.Contains(res.Categories, e.category) {
				res.Categories = append(res.Categories, e.category)
			}
			for j := range size {
				covered[i+j] = true
			}
			i += size
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	b.WriteString(folded[last:])
	res.Text = b.String()

	candidates, hits := 0, 0
	for i, s := range spans {
		if !textutil.HasLetter(s.Word) || n.v.IsCanonicalWord(s.Word) {
			continue
		}
		candidates++
		if covered[i] {
			hits++
		} else if !slices.Contains(res.Unmapped, s.Word) {
			res.Unmapped = append(res.Unmapped, s.Word)
		}
	}
	res.Coverage = 1
	if candidates > 0 {
		res.Coverage = float64(hits) / float64(candidates)
	}

	if ok && n.opts.Rewrite && len(res.Patterns) == 0 {
		n.exemplar(t, spans, &res)
	}
	return res
}
