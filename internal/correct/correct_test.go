package correct_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahar-caura/salestalk/internal/correct"
	"github.com/shahar-caura/salestalk/internal/model"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
	"github.com/shahar-caura/salestalk/vocab"
)

func loadDefault(t *testing.T) *taxonomy.Version {
	t.Helper()
	v, err := taxonomy.Load(vocab.FS, vocab.DefaultEnv, vocab.DefaultVersion)
	require.NoError(t, err)
	return v
}

func TestApply_MetricLeakRelocatesEveryMeasure(t *testing.T) {
	v := loadDefault(t)

	for _, m := range v.Measures() {
		t.Run(m.Name, func(t *testing.T) {
			rec := model.Record{Intent: "what", Subject: m.Name, Measure: "value"}
			out, log := correct.Apply(rec, "", v)

			assert.Equal(t, m.Subject, out.Subject)
			if _, isSubject := v.ResolveSubject(m.Name); isSubject {
				return
			}
			assert.Equal(t, m.Name, out.Measure)
			assert.Contains(t, log.Strings(), "correct.metric_leak:"+m.Name+"->"+m.Subject)
		})
	}
}

func TestApply_MetricLeakKeepsExplicitMeasure(t *testing.T) {
	v := loadDefault(t)

	out, _ := correct.Apply(model.Record{Intent: "what", Subject: "churn", Measure: "nps"}, "", v)
	assert.Equal(t, "customers", out.Subject)
	assert.Equal(t, "nps", out.Measure)
}

func TestApply_MeasureAlias(t *testing.T) {
	v := loadDefault(t)

	out, log := correct.Apply(model.Record{Intent: "what", Subject: "revenue", Measure: "Monthly Recurring Revenue"}, "", v)
	assert.Equal(t, "mrr", out.Measure)
	require.Len(t, log, 1)
	assert.True(t, log[0].Trivial)
}

func TestApply_MeasureFromQuestion(t *testing.T) {
	v := loadDefault(t)

	out, log := correct.Apply(model.Record{Intent: "what", Subject: "customers", Measure: "total"}, "what is our average revenue per user", v)
	assert.Equal(t, "arpu", out.Measure)
	assert.Contains(t, log.Strings(), "correct.measure_from_question:total->arpu")

	// Two measures named: ambiguous, left for the constraint pass.
	out, _ = correct.Apply(model.Record{Intent: "what", Subject: "customers", Measure: "bogus"}, "churn and nps", v)
	assert.Equal(t, "bogus", out.Measure)
}

func TestApply_TimeFill(t *testing.T) {
	v := loadDefault(t)

	out, log := correct.Apply(model.Record{Intent: "what", Subject: "revenue", Measure: "revenue"}, "What is Q3 revenue?", v)
	assert.Equal(t, model.Time{Period: "Q3", Granularity: "quarter"}, out.Time)
	assert.Equal(t, []string{"correct.time_filled:period=Q3", "correct.time_filled:granularity=quarter"}, log.Strings())
}

func TestApply_TimeKeepsModelValues(t *testing.T) {
	v := loadDefault(t)

	rec := model.Record{Intent: "what", Subject: "revenue", Measure: "revenue", Time: model.Time{Period: "Q4", Granularity: "month"}}
	out, log := correct.Apply(rec, "What is Q3 revenue?", v)
	assert.Equal(t, "Q4", out.Time.Period)
	assert.Equal(t, "month", out.Time.Granularity)
	assert.Empty(t, log)
}

func TestApply_TimeUpgradesUnknownPeriod(t *testing.T) {
	v := loadDefault(t)

	rec := model.Record{Intent: "what", Subject: "revenue", Measure: "revenue", Time: model.Time{Period: "third quarter"}}
	out, log := correct.Apply(rec, "revenue in q3", v)
	assert.Equal(t, "Q3", out.Time.Period)
	assert.Contains(t, log.Strings(), "correct.time_upgraded:period=third quarter->Q3")
}

func TestApply_Dimensions(t *testing.T) {
	v := loadDefault(t)

	rec := model.Record{Intent: "what", Subject: "customers", Measure: "customer_count"}
	out, log := correct.Apply(rec, "Top 5 active customers in EMEA", v)

	assert.Equal(t, 5, out.Dimension.Limit)
	assert.Equal(t, "top", out.Dimension.Direction)
	assert.Equal(t, []string{"active"}, out.Dimension.Values["status"])
	assert.Equal(t, []string{"EMEA"}, out.Dimension.Values["region"])
	assert.Equal(t, "rank", out.Intent)
	assert.Contains(t, log.Strings(), "correct.intent_cue:what->rank")
}

func TestApply_YearAfterRankTriggerIsNotALimit(t *testing.T) {
	v := loadDefault(t)

	rec := model.Record{Intent: "what", Subject: "revenue", Measure: "revenue"}
	out, log := correct.Apply(rec, "Which region had the highest 2024 revenue?", v)

	assert.Zero(t, out.Dimension.Limit)
	assert.Empty(t, out.Dimension.Direction)
	assert.Equal(t, "what", out.Intent)
	for _, c := range log.Strings() {
		assert.NotContains(t, c, "rank_extracted")
		assert.NotContains(t, c, "intent_cue")
	}
}

func TestApply_InvalidLimitReplacedFromQuestion(t *testing.T) {
	v := loadDefault(t)

	rec := model.Record{Intent: "what", Subject: "customers", Measure: "customer_count"}
	rec.Dimension.Limit = model.InvalidLimit
	out, log := correct.Apply(rec, "top 5 customers", v)

	assert.Equal(t, 5, out.Dimension.Limit)
	assert.Contains(t, log.Strings(), "correct.rank_extracted:limit=5")
}

func TestApply_DimensionsKeepModelFilters(t *testing.T) {
	v := loadDefault(t)

	rec := model.Record{Intent: "what", Subject: "customers", Measure: "customer_count"}
	rec.Dimension.Set("Region", "APAC")
	out, _ := correct.Apply(rec, "active customers in EMEA", v)

	assert.Equal(t, []string{"APAC"}, out.Dimension.Values["Region"])
	assert.NotContains(t, out.Dimension.Values, "region")
	assert.Equal(t, []string{"active"}, out.Dimension.Values["status"])
}

func TestApply_IntentCues(t *testing.T) {
	v := loadDefault(t)

	tests := []struct {
		question string
		want     string
	}{
		{"why did revenue drop", "why"},
		{"compare revenue in EMEA vs APAC", "compare"},
		{"revenue trend over time", "trend"},
		{"what is revenue", "what"},
	}
	for _, tt := range tests {
		out, _ := correct.Apply(model.Record{Intent: "what", Subject: "revenue", Measure: "revenue"}, tt.question, v)
		assert.Equal(t, tt.want, out.Intent, tt.question)
	}

	rec := model.Record{Intent: "what", Subject: "revenue", Measure: "revenue"}
	rec.Dimension.Set("breakdown_by", "region")
	out, _ := correct.Apply(rec, "revenue", v)
	assert.Equal(t, "breakdown", out.Intent)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	v := loadDefault(t)

	rec := model.Record{Intent: "what", Subject: "churn_rate", Measure: ""}
	_, _ = correct.Apply(rec, "top 5 customers in EMEA in Q3", v)
	assert.Equal(t, "churn_rate", rec.Subject)
	assert.Empty(t, rec.Dimension.Values)
	assert.Empty(t, rec.Time.Period)
}
