// Package parse recovers a classification record from raw model output,
// which may be wrapped in prose, fenced, truncated or loosely quoted.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shahar-caura/salestalk/internal/model"
)

// ErrUnparsable matches every *UnparsableError.
var ErrUnparsable = errors.New("unparsable model response")

// UnparsableError is returned once every strategy has failed.
type UnparsableError struct {
	Attempts int
	Last     error
}

func (e *UnparsableError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrUnparsable, e.Attempts, e.Last)
}

func (e *UnparsableError) Is(target error) bool { return target == ErrUnparsable }

func (e *UnparsableError) Unwrap() error { return e.Last }

var (
	errMissingField = errors.New("missing required field")
	errOutOfRange   = errors.New("confidence out of range")
)

var requiredFields = []string{"intent", "subject", "measure"}

type strategy struct {
	name string
	fn   func(string) string
}

// strategies run in order; the first candidate that decodes and passes the
// schema checks wins.
var strategies = []strategy{
	{"as_is", strings.TrimSpace},
	{"strip_wrapping", stripWrapping},
	{"outer_braces", outerBraces},
	{"balance", func(s string) string { return balance(fromFirstBrace(stripWrapping(s))) }},
	{"mechanical_fixes", func(s string) string { return balance(mechanicalFixes(fromFirstBrace(stripWrapping(s)))) }},
}

// Parse returns the first record a strategy recovers and how many
// strategies were attempted, the successful one included.
func Parse(raw string) (model.Record, int, error) {
	var last error
	for i, st := range strategies {
		rec, err := decode(st.fn(raw))
		if err == nil {
			return rec, i + 1, nil
		}
		last = fmt.Errorf("%s: %w", st.name, err)
	}
	return model.Record{}, len(strategies), &UnparsableError{Attempts: len(strategies), Last: last}
}

func decode(s string) (model.Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return model.Record{}, err
	}
	for _, f := range requiredFields {
		v, ok := fields[f]
		if !ok || string(v) == "null" {
			return model.Record{}, fmt.Errorf("%w: %s", errMissingField, f)
		}
		var str string
		if err := json.Unmarshal(v, &str); err != nil {
			return model.Record{}, fmt.Errorf("%s: %w", f, err)
		}
	}
	var rec model.Record
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return model.Record{}, err
	}
	if err := checkConfidence(rec.Confidence); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

func checkConfidence(c model.Confidence) error {
	if c.Reported && (c.Overall < 0 || c.Overall > 1) {
		return fmt.Errorf("%w: overall=%v", errOutOfRange, c.Overall)
	}
	for name, v := range c.Components {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v", errOutOfRange, name, v)
		}
	}
	return nil
}

// stripWrapping removes a markdown fence and any prose around it. Without
// a fence it trims a prose lead-in before the first brace and a prose
// tail after the last one.
func stripWrapping(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start == -1 {
		return stripProse(s)
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl != -1 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// stripProse only cuts text that cannot be part of the object: no quotes,
// braces or brackets.
func stripProse(s string) string {
	if i := strings.IndexByte(s, '{'); i > 0 && isProse(s[:i]) {
		s = s[i:]
	}
	if j := strings.LastIndexByte(s, '}'); j != -1 && j < len(s)-1 && isProse(s[j+1:]) {
		s = s[:j+1]
	}
	return s
}

func isProse(s string) bool {
	return !strings.ContainsAny(s, "\"'{}[]")
}

func outerBraces(s string) string {
	s = stripWrapping(s)
	i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if i == -1 || j < i {
		return s
	}
	return s[i : j+1]
}

func fromFirstBrace(s string) string {
	if i := strings.IndexByte(s, '{'); i != -1 {
		return s[i:]
	}
	return s
}

// balance cuts anything after the outermost object closes and appends the
// closers a truncated object is missing.
func balance(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return s[:i+1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}
	b.Reset()
	b.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

var (
	singleQuoted  = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	pyLiteral     = regexp.MustCompile(`\b(True|False|None)\b`)
	lineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
)

// mechanicalFixes repairs the JSON dialects models drift into: single
// quotes, trailing commas, Python literals and line comments.
func mechanicalFixes(s string) string {
	s = lineComment.ReplaceAllString(s, "")
	if !strings.Contains(s, `"`) {
		s = singleQuoted.ReplaceAllStringFunc(s, func(m string) string {
			inner := singleQuoted.FindStringSubmatch(m)[1]
			b, _ := json.Marshal(strings.ReplaceAll(inner, `\'`, `'`))
			return string(b)
		})
	}
	s = pyLiteral.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case "True":
			return "true"
		case "False":
			return "false"
		default:
			return "null"
		}
	})
	return trailingComma.ReplaceAllString(s, "$1")
}
