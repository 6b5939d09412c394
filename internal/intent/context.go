package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

// FormatVocabulary renders the allowed vocabulary of v as markdown for
// inclusion in the prompt. Output depends only on v.
func FormatVocabulary(v *taxonomy.Version) string {
	var sb strings.Builder

	sb.WriteString("## Intents\n")
	for _, in := range v.Intents() {
		fmt.Fprintf(&sb, "- %s: %s\n", in.Name, in.Description)
	}
	sb.WriteString("\n")

	sb.WriteString("## Subjects\n")
	for _, s := range v.Subjects() {
		fmt.Fprintf(&sb, "- %s: %s Intents: %s. Measures: %s.\n",
			s.Name, s.Description, strings.Join(s.Intents, ", "), strings.Join(s.Measures, ", "))
	}
	sb.WriteString("\n")

	sb.WriteString("## Measures\n")
	for _, m := range v.Measures() {
		fmt.Fprintf(&sb, "- %s (subject %s", m.Name, m.Subject)
		if m.Unit != "" {
			fmt.Fprintf(&sb, ", %s", m.Unit)
		}
		sb.WriteString(")")
		if len(m.Aliases) > 0 {
			fmt.Fprintf(&sb, ", also: %s", strings.Join(m.Aliases, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Dimensions\n")
	for _, d := range v.Dimensions() {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Name, strings.Join(d.Values, ", "))
	}
	fmt.Fprintf(&sb, "- limit: integer from 1 to %d\n", v.RankLimit())
	sb.WriteString("- direction: top or bottom\n")
	for _, p := range v.Passthroughs() {
		fmt.Fprintf(&sb, "- %s: list of %s names\n", p.Key, p.Kind)
	}
	sb.WriteString("\n")

	tt := v.TimeTokens()
	sb.WriteString("## Time\n")
	fmt.Fprintf(&sb, "- period: %s\n", strings.Join(tt.Periods, ", "))
	var dyn []string
	for _, d := range v.DynamicPeriods() {
		dyn = append(dyn, taxonomy.FormatDynamic(d, "YYYY"))
	}
	if len(dyn) > 0 {
		fmt.Fprintf(&sb, "- period with a year: %s\n", strings.Join(dyn, ", "))
	}
	fmt.Fprintf(&sb, "- window: %s\n", strings.Join(tt.Windows, ", "))
	fmt.Fprintf(&sb, "- granularity: %s\n", strings.Join(tt.Granularities, ", "))
	sb.WriteString("\n")

	return sb.String()
}

// FormatExamples renders the worked examples for lang, or "" when the
// language has none.
func FormatExamples(v *taxonomy.Version, lang string) string {
	l, ok := v.Language(lang)
	if !ok || len(l.Examples) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Examples\n\n")
	for _, ex := range l.Examples {
		out, err := json.Marshal(ex.Output)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "Question: %s\nOutput: %s\n\n", ex.Question, out)
	}
	return sb.String()
}
