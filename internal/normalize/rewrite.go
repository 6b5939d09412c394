package normalize

import (
	"regexp"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/shahar-caura/salestalk/internal/textutil"
)

type rule struct {
	name    string
	re      *regexp.Regexp
	anchors []anchor
	rewrite string
	tags    []string
}

type anchor struct {
	text string
	n    int
}

type exemplar struct {
	source  string
	words   map[string]bool
	rewrite string
	tags    []string
}

// phraseHit replaces the words [start, end) with rewrite; the map holding
// it is keyed by start.
type phraseHit struct {
	end     int
	rewrite string
}

// phrases finds the phrase rewrites for folded text. Exact pattern matches
// win; the approximate pass runs only when none matched and applies the
// single best anchor window.
func (n *Normalizer) phrases(t *table, folded string, spans []textutil.Span, res *Result) map[int]phraseHit {
	hits := make(map[int]phraseHit)
	claimed := make([]bool, len(spans))
	for _, r := range t.rules {
		for _, m := range r.re.FindAllStringIndex(folded, -1) {
			i, j := wordRange(spans, m[0], m[1])
			if i >= j || slices.Contains(claimed[i:j], true) {
				continue
			}
			for k := i; k < j; k++ {
				claimed[k] = true
			}
			hits[i] = phraseHit{end: j, rewrite: r.rewrite}
			res.addPattern(r)
		}
	}
	if len(hits) > 0 || n.opts.FuzzyThreshold <= 0 {
		return hits
	}

	var (
		best      *rule
		bestScore float64
		bestI     int
		bestJ     int
	)
	for ri := range t.rules {
		r := &t.rules[ri]
		for _, a := range r.anchors {
			for size := max(1, a.n-1); size <= a.n+1; size++ {
				for i := 0; i+size <= len(spans); i++ {
					window := folded[spans[i].Start:spans[i+size-1].End]
					score := similarity(a.text, window)
					if score >= n.opts.FuzzyThreshold && score > bestScore {
						best, bestScore, bestI, bestJ = r, score, i, i+size
					}
				}
			}
		}
	}
	if best != nil {
		hits[bestI] = phraseHit{end: bestJ, rewrite: best.rewrite}
		res.addPattern(*best)
		res.FuzzyScore = bestScore
	}
	return hits
}

// exemplar replaces the whole question with the rewrite of the exemplar
// sharing the largest share of the question's words. Coverage is raised
// to that share since the rewrite is canonical text.
func (n *Normalizer) exemplar(t *table, spans []textutil.Span, res *Result) {
	if len(t.exemplars) == 0 || n.opts.ExemplarThreshold <= 0 {
		return
	}
	q := make(map[string]bool, len(spans))
	for _, s := range spans {
		q[s.Word] = true
	}
	if len(q) == 0 {
		return
	}
	var (
		best      *exemplar
		bestScore float64
	)
	for i := range t.exemplars {
		e := &t.exemplars[i]
		shared := 0
		for w := range q {
			if e.words[w] {
				shared++
			}
		}
		if score := float64(shared) / float64(len(q)); score > bestScore {
			best, bestScore = e, score
		}
	}
	if best == nil || bestScore < n.opts.ExemplarThreshold {
		return
	}
	res.Text = best.rewrite
	res.Exemplar = best.source
	res.ExemplarScore = bestScore
	res.Coverage = max(res.Coverage, bestScore)
	res.Unmapped = nil
	res.addTags(best.tags)
}

func (r *Result) addPattern(p rule) {
	if !slices.Contains(r.Patterns, p.name) {
		r.Patterns = append(r.Patterns, p.name)
	}
	r.addTags(p.tags)
}

func (r *Result) addTags(tags []string) {
	for _, t := range tags {
		if !slices.Contains(r.Tags, t) {
			r.Tags = append(r.Tags, t)
		}
	}
}

// wordRange returns the words fully inside the byte range [start, end).
func wordRange(spans []textutil.Span, start, end int) (int, int) {
	i := 0
	for i < len(spans) && spans[i].Start < start {
		i++
	}
	j := i
	for j < len(spans) && spans[j].End <= end {
		j++
	}
	return i, j
}

// similarity is the difflib ratio of two strings compared rune by rune.
func similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

func wordSet(ws []string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}
