package model

import "fmt"

// Pass names a stage that may append corrections.
type Pass string

const (
	PassCorrect   Pass = "correct"
	PassConstrain Pass = "constrain"
	PassRepair    Pass = "repair"
)

// Correction is one observational entry in a request's audit trail.
// Trivial corrections only change spelling or case and are not penalized
// by the calibrator.
type Correction struct {
	Pass      Pass
	Rule      string
	Detail    string
	Component string
	Trivial   bool
}

// String renders the correction as "pass.rule:detail".
func (c Correction) String() string {
	if c.Detail == "" {
		return fmt.Sprintf("%s.%s", c.Pass, c.Rule)
	}
	return fmt.Sprintf("%s.%s:%s", c.Pass, c.Rule, c.Detail)
}

// Log is an append-only list of corrections.
type Log []Correction

// Add appends a non-trivial correction.
func (l *Log) Add(pass Pass, component, rule, format string, args ...any) {
	*l = append(*l, Correction{Pass: pass, Rule: rule, Detail: fmt.Sprintf(format, args...), Component: component})
}

// AddTrivial appends a trivial correction.
func (l *Log) AddTrivial(pass Pass, component, rule, format string, args ...any) {
	*l = append(*l, Correction{Pass: pass, Rule: rule, Detail: fmt.Sprintf(format, args...), Component: component, Trivial: true})
}

// Strings renders every entry in order.
func (l Log) Strings() []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = c.String()
	}
	return out
}

// NonTrivial counts entries that change meaning.
func (l Log) NonTrivial() int {
	n := 0
	for _, c := range l {
		if !c.Trivial {
			n++
		}
	}
	return n
}
