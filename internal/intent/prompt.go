package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shahar-caura/salestalk/internal/model"
	"github.com/shahar-caura/salestalk/internal/repair"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

const outputFormat = `## Output format

{"intent": "...", "subject": "...", "measure": "...",
 "dimension": {"<dimension>": "<value>", "limit": 5, "direction": "top"},
 "time": {"period": "...", "window": "...", "granularity": "..."},
 "confidence": {"overall": 0.0-1.0, "components": {"intent": 0.0-1.0, "subject": 0.0-1.0, "measure": 0.0-1.0, "dimension": 0.0-1.0, "time": 0.0-1.0}}}

`

// BuildPrompt constructs the classification prompt. question is the text
// after normalization; lang selects which worked examples are included.
// The same inputs always produce the same prompt.
func BuildPrompt(question, lang string, v *taxonomy.Version) string {
	var sb strings.Builder

	sb.WriteString(`You classify business questions for a sales analytics assistant.
Map the question onto the vocabulary below: one intent, one subject, one measure,
any dimension filters, and the time scope.

`)
	sb.WriteString(FormatVocabulary(v))

	if ex := FormatExamples(v, lang); ex != "" {
		sb.WriteString(ex)
	}

	sb.WriteString(`## Rules

1. Use only tokens listed above. Never invent subjects, measures or dimension values.
2. The measure decides the subject: pick the subject that owns the measure.
3. Never put a measure name in the subject field.
4. Omit dimension and time keys the question does not mention.
5. If the question names a metric that is not listed, return it as the measure anyway; do not substitute a different one.
6. Return ONLY bare JSON: no markdown, no code fences, no explanation.

`)
	sb.WriteString(outputFormat)

	fmt.Fprintf(&sb, "## Question\n\n%s\n", question)

	return sb.String()
}

// BuildRepairPrompt asks the provider to fix named issues in a record it
// produced earlier.
func BuildRepairPrompt(question string, rec model.Record, issues []repair.Issue, v *taxonomy.Version) string {
	var sb strings.Builder

	sb.WriteString("Your previous classification of this question has problems. Fix them and return the full corrected JSON.\n\n")

	fmt.Fprintf(&sb, "## Question\n\n%s\n\n", question)

	prev, err := json.Marshal(rec)
	if err != nil {
		prev = []byte("{}")
	}
	fmt.Fprintf(&sb, "## Previous output\n\n%s\n\n", prev)

	sb.WriteString("## Problems\n\n")
	for _, i := range issues {
		fmt.Fprintf(&sb, "- %s\n", i)
	}
	sb.WriteString("\n")

	sb.WriteString("## Allowed values\n\n")
	for _, s := range v.Subjects() {
		fmt.Fprintf(&sb, "- subject %s: measures %s\n", s.Name, strings.Join(s.Measures, ", "))
	}
	for _, d := range v.Dimensions() {
		fmt.Fprintf(&sb, "- dimension %s: %s\n", d.Name, strings.Join(d.Values, ", "))
	}
	tt := v.TimeTokens()
	fmt.Fprintf(&sb, "- time period: %s\n", strings.Join(tt.Periods, ", "))
	fmt.Fprintf(&sb, "- time window: %s\n", strings.Join(tt.Windows, ", "))
	sb.WriteString("\n")

	sb.WriteString("Return ONLY bare JSON.\n\n")
	sb.WriteString(outputFormat)

	return sb.String()
}
