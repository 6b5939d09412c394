package taxonomy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatterns_Rank(t *testing.T) {
	p := loadDefault(t).Patterns()

	limit, dir, ok := p.Rank("Top 5 active customers in EMEA")
	require.True(t, ok)
	assert.Equal(t, 5, limit)
	assert.Equal(t, "top", dir)

	limit, dir, ok = p.Rank("show the worst 10 accounts")
	require.True(t, ok)
	assert.Equal(t, 10, limit)
	assert.Equal(t, "bottom", dir)

	_, _, ok = p.Rank("top customers")
	assert.False(t, ok)
}

func TestPatterns_RankSkipsYears(t *testing.T) {
	p := loadDefault(t).Patterns()

	_, _, ok := p.Rank("Which region had the highest 2024 revenue?")
	assert.False(t, ok)

	limit, dir, ok := p.Rank("lowest 1999 churn, then the top 3 regions")
	require.True(t, ok)
	assert.Equal(t, 3, limit)
	assert.Equal(t, "top", dir)

	limit, _, ok = p.Rank("top 2500 accounts")
	require.True(t, ok)
	assert.Equal(t, 2500, limit)
}

func TestPatterns_Dimensions(t *testing.T) {
	p := loadDefault(t).Patterns()

	got := map[string]string{}
	for _, m := range p.Dimensions("Top 5 active customers in EMEA") {
		got[m.Dimension] = m.Value
	}
	assert.Equal(t, map[string]string{"status": "active", "region": "EMEA"}, got)

	got = map[string]string{}
	for _, m := range p.Dimensions("email revenue for hardware products from Europe") {
		got[m.Dimension] = m.Value
	}
	assert.Equal(t, map[string]string{"channel": "email", "productLine": "Hardware", "region": "EMEA"}, got)
}

func TestPatterns_DimensionsPrecedence(t *testing.T) {
	p := loadDefault(t).Patterns()

	// "enterprise customers" is offered to status first, which has no such
	// value, so segment claims it; "active" is then status only.
	ms := p.Dimensions("active enterprise customers")
	got := map[string]string{}
	for _, m := range ms {
		got[m.Dimension] = m.Value
	}
	assert.Equal(t, "Enterprise", got["segment"])
	assert.NotContains(t, got, "status")
}

func TestPatterns_Time(t *testing.T) {
	p := loadDefault(t).Patterns()

	tests := []struct {
		text string
		want [3]string
	}{
		{"What is Q3 revenue?", [3]string{"Q3", "", "quarter"}},
		{"revenue year to date by month", [3]string{"", "ytd", "month"}},
		{"churn over the last 3 months", [3]string{"", "last_3_months", "month"}},
		{"signups for black friday 2025", [3]string{"Black Friday 2025", "", "day"}},
		{"revenue in q1 2026", [3]string{"Q1 2026", "", "quarter"}},
		{"what are our revenue in last_month?", [3]string{"last_month", "", "month"}},
		{"weekly signups this quarter", [3]string{"this_quarter", "", "week"}},
		{"revenue", [3]string{}},
	}
	for _, tt := range tests {
		tm := p.Time(tt.text)
		assert.Equal(t, tt.want, [3]string{tm.Period, tm.Window, tm.Granularity}, tt.text)
	}
}

func TestPatterns_Measures(t *testing.T) {
	p := loadDefault(t).Patterns()

	assert.Equal(t, []string{"arpu"}, p.Measures("Average revenue per user in EMEA"))
	assert.Equal(t, []string{"churn_rate", "nps"}, p.Measures("churn and net promoter score"))
	assert.Empty(t, p.Measures("what is the total value"))
}

func TestPatterns_Cue(t *testing.T) {
	v := loadDefault(t)
	p := v.Patterns()
	rules := v.IntentRules()

	idx := func(intent string) int {
		for i, r := range rules {
			if r.Intent == intent {
				return i
			}
		}
		return -1
	}
	assert.True(t, p.Cue(idx("why"), "Why did revenue drop?"))
	assert.True(t, p.Cue(idx("compare"), "EMEA vs APAC revenue"))
	assert.False(t, p.Cue(idx("compare"), "revenue in EMEA"))
	assert.False(t, p.Cue(idx("rank"), "anything"))
	assert.False(t, p.Cue(99, "why"))
}
