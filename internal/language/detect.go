// Package language guesses the source language of a question from
// stopwords and diacritics.
package language

import (
	"math"

	"github.com/shahar-caura/salestalk/internal/taxonomy"
	"github.com/shahar-caura/salestalk/internal/textutil"
)

// Detection methods.
const (
	MethodStopwords  = "stopwords"
	MethodDensity    = "stopword_density"
	MethodDiacritics = "diacritics"
	MethodDefault    = "default"
	MethodOverride   = "override"
	MethodDisabled   = "disabled"
)

const (
	minStopwordHits   = 2
	minDensity        = 0.3
	diacriticBoost    = 0.15
	diacriticOverride = 0.75
	defaultConfidence = 0.7
	emptyConfidence   = 0.5
)

// Detection is the detector's verdict.
type Detection struct {
	Language   string
	Confidence float64
	Method     string
}

type profile struct {
	code       string
	stopwords  map[string]bool
	diacritics string
}

// Detector classifies text as one of a version's languages. Stopwords
// shared with the canonical language are ignored, so "a" or "v" never
// count as evidence.
type Detector struct {
	canonical string
	profiles  []profile
}

// New builds a detector for the languages of v.
func New(v *taxonomy.Version) *Detector {
	d := &Detector{canonical: v.Canonical()}
	shared := make(map[string]bool)
	if c, ok := v.Language(v.Canonical()); ok {
		for _, w := range c.Stopwords {
			shared[textutil.Fold(w)] = true
		}
	}
	for _, l := range v.Languages() {
		if l.Code == d.canonical {
			continue
		}
		p := profile{code: l.Code, stopwords: make(map[string]bool), diacritics: l.Diacritics}
		for _, w := range l.Stopwords {
			w = textutil.Fold(w)
			if !shared[w] {
				p.stopwords[w] = true
			}
		}
		d.profiles = append(d.profiles, p)
	}
	return d
}

// Detect returns the most likely language of text. It never fails; text
// without evidence is attributed to the canonical language.
func (d *Detector) Detect(text string) Detection {
	words := textutil.Words(textutil.Fold(text))
	if len(words) == 0 {
		return Detection{Language: d.canonical, Confidence: emptyConfidence, Method: MethodDefault}
	}

	best := Detection{Language: d.canonical, Confidence: defaultConfidence, Method: MethodDefault}
	bestHits := 0
	for _, p := range d.profiles {
		hits := 0
		for _, w := range words {
			if p.stopwords[w.Word] {
				hits++
			}
		}
		if hits == 0 || hits <= bestHits {
			continue
		}
		density := float64(hits) / float64(len(words))
		switch {
		case hits >= minStopwordHits:
			best = Detection{Language: p.code, Confidence: math.Min(0.85+0.05*float64(hits), 1), Method: MethodStopwords}
			bestHits = hits
		case density >= minDensity:
			best = Detection{Language: p.code, Confidence: 0.75 + 0.2*density, Method: MethodDensity}
			bestHits = hits
		}
	}

	for _, p := range d.profiles {
		if !textutil.HasAny(text, p.diacritics) {
			continue
		}
		switch best.Language {
		case p.code:
			best.Confidence = math.Min(best.Confidence+diacriticBoost, 1)
			best.Method += "+" + MethodDiacritics
		case d.canonical:
			best = Detection{Language: p.code, Confidence: diacriticOverride, Method: MethodDiacritics}
		}
	}
	return best
}
