// Package textutil provides the text folding shared by detection,
// normalization and taxonomy lookups.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['_][\p{L}\p{N}]+)*`)

// StripDiacritics removes combining marks, so "tržby" becomes "trzby".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold lower-cases, strips diacritics and collapses whitespace.
func Fold(s string) string {
	return strings.Join(strings.Fields(StripDiacritics(strings.ToLower(s))), " ")
}

// Key folds s into a lookup key: separators become underscores.
// "Black Friday", "black-friday" and "black_friday" share one key.
func Key(s string) string {
	f := Fold(s)
	f = strings.NewReplacer("-", "_", " ", "_").Replace(f)
	for strings.Contains(f, "__") {
		f = strings.ReplaceAll(f, "__", "_")
	}
	return strings.Trim(f, "_")
}

// Span is a word with its byte offsets in the source string.
type Span struct {
	Word       string
	Start, End int
}

// Words splits s into word spans. Punctuation and whitespace are skipped.
func Words(s string) []Span {
	locs := wordRe.FindAllStringIndex(s, -1)
	out := make([]Span, len(locs))
	for i, l := range locs {
		out[i] = Span{Word: s[l[0]:l[1]], Start: l[0], End: l[1]}
	}
	return out
}

// HasAny reports whether s contains any rune from set.
func HasAny(s, set string) bool {
	return set != "" && strings.ContainsAny(strings.ToLower(s), set)
}

// HasLetter reports whether s contains at least one letter.
func HasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
