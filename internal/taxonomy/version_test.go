package taxonomy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

func TestResolve(t *testing.T) {
	v := loadDefault(t)

	m, ok := v.ResolveMeasure("Monthly Recurring Revenue")
	assert.True(t, ok)
	assert.Equal(t, "mrr", m)

	m, ok = v.ResolveMeasure("churn-rate")
	assert.True(t, ok)
	assert.Equal(t, "churn_rate", m)

	_, ok = v.ResolveMeasure("mystery_metric")
	assert.False(t, ok)

	s, ok := v.ResolveSubject("Clients")
	assert.True(t, ok)
	assert.Equal(t, "customers", s)

	in, ok := v.ResolveIntent("WHY")
	assert.True(t, ok)
	assert.Equal(t, "why", in)

	assert.True(t, v.IsMeasureName("churn_rate"))
	assert.False(t, v.IsMeasureName("churn"))
	assert.True(t, v.IsGenericMeasure("Total"))
	assert.True(t, v.AllowsIntent("marketing", "forecast"))
	assert.False(t, v.AllowsIntent("revenue", "forecast"))
}

func TestDimensionLookups(t *testing.T) {
	v := loadDefault(t)

	assert.Equal(t, []string{"EMEA", "APAC", "NA", "LATAM"}, v.DimensionValues("region"))
	assert.Nil(t, v.DimensionValues("planet"))

	tests := []struct{ dim, raw, want string }{
		{"region", "emea", "EMEA"},
		{"region", "Europe", "EMEA"},
		{"channel", "Email", "email"},
		{"channel", "paid search", "paid_search"},
		{"product_line", "hardware", "Hardware"},
		{"segment", "mid market", "Mid-Market"},
	}
	for _, tt := range tests {
		got, ok := v.CanonicalDimensionValue(tt.dim, tt.raw)
		assert.True(t, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
	_, ok := v.CanonicalDimensionValue("region", "Mars")
	assert.False(t, ok)

	p, ok := v.DimensionPassthrough("breakdownBy")
	assert.True(t, ok)
	assert.Equal(t, "breakdown_by", p.Key)
	assert.Equal(t, taxonomy.KindDimension, p.Kind)
	assert.Equal(t, 1000, v.RankLimit())
}

func TestTimeLookups(t *testing.T) {
	v := loadDefault(t)

	tt := v.TimeTokens()
	assert.Contains(t, tt.Periods, "Q3")
	assert.Contains(t, tt.Windows, "ytd")
	assert.Equal(t, []string{"day", "week", "month", "quarter", "year"}, tt.Granularities)

	periods := map[string]string{
		"This Month":        "this_month",
		"q3":                "Q3",
		"black friday 2025": "Black Friday 2025",
		"eoy_2025":          "EOY 2025",
		"q1 2026":           "Q1 2026",
		"holiday2024":       "holiday_2024",
	}
	for raw, want := range periods {
		got, ok := v.CanonicalPeriod(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got.Token, raw)
	}
	_, ok := v.CanonicalPeriod("someday")
	assert.False(t, ok)
	_, ok = v.CanonicalPeriod("martian 2025")
	assert.False(t, ok)

	w, ok := v.CanonicalWindow("YTD")
	assert.True(t, ok)
	assert.Equal(t, "ytd", w.Token)

	g, ok := v.CanonicalGranularity("Months")
	assert.True(t, ok)
	assert.Equal(t, "month", g)
	_, ok = v.CanonicalGranularity("fortnight")
	assert.False(t, ok)

	assert.Equal(t, "month", v.Finer("quarter", "month"))
	assert.Equal(t, "day", v.Finer("day", "year"))
	assert.Equal(t, "week", v.Finer("bogus", "week"))
}

func TestIsCanonicalWord(t *testing.T) {
	v := loadDefault(t)
	for _, w := range []string{"revenue", "q3", "emea", "top", "what", "the"} {
		assert.True(t, v.IsCanonicalWord(w), w)
	}
	assert.False(t, v.IsCanonicalWord("trzby"))
}
