// Package model holds the classification record that flows between passes.
package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Component names used for per-component confidence and correction tagging.
const (
	ComponentIntent    = "intent"
	ComponentSubject   = "subject"
	ComponentMeasure   = "measure"
	ComponentDimension = "dimension"
	ComponentTime      = "time"
)

// Components lists every confidence component in output order.
var Components = []string{ComponentIntent, ComponentSubject, ComponentMeasure, ComponentDimension, ComponentTime}

// Record is one interpretation of a question. It starts as whatever the
// provider returned and is rewritten by each pass.
type Record struct {
	Intent     string     `json:"intent"`
	Subject    string     `json:"subject"`
	Measure    string     `json:"measure"`
	Dimension  Dimension  `json:"dimension"`
	Time       Time       `json:"time"`
	Confidence Confidence `json:"confidence"`
}

// Clone returns a deep copy so passes never share mutable state.
func (r Record) Clone() Record {
	out := r
	out.Dimension = r.Dimension.Clone()
	out.Time = r.Time.Clone()
	out.Confidence = r.Confidence.Clone()
	return out
}

// Dimension holds filters keyed by dimension name plus the rank fields.
// A filter with one value serializes as a string, more than one as a list.
type Dimension struct {
	Values    map[string][]string
	Limit     int
	Direction string
}

// Has reports whether the named filter is set.
func (d Dimension) Has(name string) bool {
	return len(d.Values[name]) > 0
}

// Set replaces the values of a filter, creating the map on first use.
func (d *Dimension) Set(name string, values ...string) {
	if d.Values == nil {
		d.Values = make(map[string][]string)
	}
	d.Values[name] = values
}

// Keys returns the filter names in sorted order.
func (d Dimension) Keys() []string {
	return slices.Sorted(maps.Keys(d.Values))
}

// Empty reports whether no filter and no rank field is set.
func (d Dimension) Empty() bool {
	return len(d.Values) == 0 && d.Limit == 0 && d.Direction == ""
}

func (d Dimension) Clone() Dimension {
	out := Dimension{Limit: d.Limit, Direction: d.Direction}
	if d.Values != nil {
		out.Values = make(map[string][]string, len(d.Values))
		for k, v := range d.Values {
			out.Values[k] = slices.Clone(v)
		}
	}
	return out
}

func (d Dimension) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Values)+2)
	for k, v := range d.Values {
		if len(v) == 1 {
			m[k] = v[0]
		} else {
			m[k] = v
		}
	}
	if d.Limit != 0 {
		m["limit"] = d.Limit
	}
	if d.Direction != "" {
		m["direction"] = d.Direction
	}
	return json.Marshal(m)
}

// InvalidLimit marks a limit the provider sent that is not an integer.
// The constraint pass drops it.
const InvalidLimit = -1

// UnmarshalJSON accepts the loose shapes models produce: strings or lists
// for filters, and numbers or numeric strings for the limit. A dimension
// that is not an object decodes as empty, a limit that is not an integer
// as InvalidLimit, and filters of any other shape are skipped.
func (d *Dimension) UnmarshalJSON(data []byte) error {
	*d = Dimension{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for k, v := range raw {
		switch k {
		case "limit":
			n, err := decodeLimit(v)
			if err != nil {
				n = InvalidLimit
			}
			d.Limit = n
		case "direction":
			var s string
			if json.Unmarshal(v, &s) == nil {
				d.Direction = s
			}
		default:
			vals, err := decodeValues(v)
			if err == nil && len(vals) > 0 {
				d.Set(k, vals...)
			}
		}
	}
	return nil
}

func decodeLimit(v json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return int(f), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return n, nil
}

func decodeValues(v json.RawMessage) ([]string, error) {
	if string(v) == "null" {
		return nil, nil
	}
	var one any
	if err := json.Unmarshal(v, &one); err != nil {
		return nil, err
	}
	switch t := one.(type) {
	case string:
		return []string{t}, nil
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}, nil
	case bool:
		return []string{strconv.FormatBool(t)}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64:
				out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value %s", v)
	}
}

// Time describes the time scope of a question.
type Time struct {
	Period      string            `json:"period,omitempty"`
	Window      string            `json:"window,omitempty"`
	Granularity string            `json:"granularity,omitempty"`
	Periods     []string          `json:"periods,omitempty"`
	Extra       map[string]string `json:"-"`
}

func (t Time) Empty() bool {
	return t.Period == "" && t.Window == "" && t.Granularity == "" && len(t.Periods) == 0 && len(t.Extra) == 0
}

func (t Time) Clone() Time {
	out := t
	out.Periods = slices.Clone(t.Periods)
	out.Extra = maps.Clone(t.Extra)
	return out
}

func (t Time) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 4+len(t.Extra))
	for k, v := range t.Extra {
		m[k] = v
	}
	if t.Period != "" {
		m["period"] = t.Period
	}
	if t.Window != "" {
		m["window"] = t.Window
	}
	if t.Granularity != "" {
		m["granularity"] = t.Granularity
	}
	if len(t.Periods) > 0 {
		m["periods"] = t.Periods
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a time object. Anything that is not an object
// decodes as empty and values that are not strings are skipped.
func (t *Time) UnmarshalJSON(data []byte) error {
	*t = Time{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for k, v := range raw {
		if k == "periods" {
			if vals, err := decodeValues(v); err == nil {
				t.Periods = vals
			}
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		switch k {
		case "period":
			t.Period = s
		case "window":
			t.Window = s
		case "granularity":
			t.Granularity = s
		default:
			if t.Extra == nil {
				t.Extra = make(map[string]string)
			}
			t.Extra[k] = s
		}
	}
	return nil
}

// Confidence carries an overall score and optional per-component scores.
// Reported is false when the provider did not supply an overall score.
type Confidence struct {
	Overall    float64            `json:"overall"`
	Components map[string]float64 `json:"components,omitempty"`
	Reported   bool               `json:"-"`
}

func (c Confidence) Clone() Confidence {
	out := c
	out.Components = maps.Clone(c.Components)
	return out
}

// UnmarshalJSON accepts components nested under "components" or flat
// next to "overall".
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Confidence{}
	if v, ok := raw["overall"]; ok {
		if err := json.Unmarshal(v, &c.Overall); err != nil {
			return fmt.Errorf("confidence.overall: %w", err)
		}
		c.Reported = true
	}
	if v, ok := raw["components"]; ok {
		if err := json.Unmarshal(v, &c.Components); err != nil {
			return fmt.Errorf("confidence.components: %w", err)
		}
	}
	for _, name := range Components {
		v, ok := raw[name]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return fmt.Errorf("confidence.%s: %w", name, err)
		}
		if c.Components == nil {
			c.Components = make(map[string]float64)
		}
		c.Components[name] = f
	}
	return nil
}
