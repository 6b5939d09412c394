package taxonomy

// Intent is one allowed question intent.
type Intent struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Subject is a business area. The first entry of Intents is the default
// intent used when a model's intent is not allowed for the subject.
type Subject struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
	Intents     []string `yaml:"intents"`
	Measures    []string `yaml:"measures"`
}

// Measure is a quantity owned by exactly one subject.
type Measure struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
	Subject     string   `yaml:"subject"`
	Unit        string   `yaml:"unit"`
	Aggregation string   `yaml:"aggregation"`
}

// Dimension is an enumerated filter vocabulary. Prepositions and Nouns
// drive extraction from question text; Bare allows a value to match on
// its own.
type Dimension struct {
	Name         string            `yaml:"name"`
	Values       []string          `yaml:"values"`
	Synonyms     map[string]string `yaml:"synonyms"`
	Bare         bool              `yaml:"bare"`
	Prepositions []string          `yaml:"prepositions"`
	Nouns        []string          `yaml:"nouns"`
}

// Rank configures top/bottom-N extraction.
type Rank struct {
	MaxLimit       int      `yaml:"max_limit"`
	TopTriggers    []string `yaml:"top_triggers"`
	BottomTriggers []string `yaml:"bottom_triggers"`
}

// Passthrough value kinds.
const (
	KindDimension = "dimension"
	KindMeasure   = "measure"
	KindFree      = "free"
)

// Passthrough is a dimension key that is not a filter, such as
// breakdown_by. Kind says what its values must name.
type Passthrough struct {
	Key  string `yaml:"key"`
	Kind string `yaml:"kind"`
}

// TimeToken is a canonical period or window token with the granularity it
// implies.
type TimeToken struct {
	Token       string `yaml:"token"`
	Granularity string `yaml:"granularity"`
}

// Dynamic period styles.
const (
	StyleCanonical = "canonical"
	StyleUpper     = "upper"
	StyleTitle     = "title"
)

// DynamicPeriod matches "<prefix> <year>" periods such as "black friday 2025".
type DynamicPeriod struct {
	Prefix      string `yaml:"prefix"`
	Style       string `yaml:"style"`
	Granularity string `yaml:"granularity"`
}

// TimePhrase maps a regular expression over folded question text to time
// tokens.
type TimePhrase struct {
	Pattern     string `yaml:"pattern"`
	Period      string `yaml:"period"`
	Window      string `yaml:"window"`
	Granularity string `yaml:"granularity"`
}

// TimeVocabulary is the canonical time vocabulary. Granularities are
// ordered finest first.
type TimeVocabulary struct {
	Granularities  []string        `yaml:"granularities"`
	Periods        []TimeToken     `yaml:"periods"`
	Windows        []TimeToken     `yaml:"windows"`
	DynamicPeriods []DynamicPeriod `yaml:"dynamic_periods"`
	Phrases        []TimePhrase    `yaml:"phrases"`
	Passthrough    []string        `yaml:"passthrough"`
}

// TimeTokens is a read-only view of the canonical time vocabulary.
type TimeTokens struct {
	Periods       []string
	Windows       []string
	Granularities []string
}

// IntentRule upgrades the intent when any cue appears in the question or
// when every Requires key is present in the dimension filters.
type IntentRule struct {
	Intent   string   `yaml:"intent"`
	Cues     []string `yaml:"cues"`
	Requires []string `yaml:"requires"`
}

// Language is a supported source language.
type Language struct {
	Code       string   `yaml:"code"`
	Name       string   `yaml:"name"`
	Stopwords  []string `yaml:"stopwords"`
	Diacritics string   `yaml:"diacritics"`

	Lexicon  *Lexicon  `yaml:"-"`
	Examples []Example `yaml:"-"`
}

// Lexicon maps source-language aliases to canonical tokens. Categories are
// ordered by priority: on an identical alias the earlier category wins.
type Lexicon struct {
	Categories []LexiconCategory `yaml:"categories"`
	Patterns   []RewritePattern  `yaml:"patterns"`
	Exemplars  []Exemplar        `yaml:"exemplars"`
}

// RewritePattern replaces a colloquial phrase that has no word-by-word
// translation. Pattern is a regular expression over folded text; Anchors
// are plain spellings used for approximate matching.
type RewritePattern struct {
	Name    string   `yaml:"name"`
	Pattern string   `yaml:"pattern"`
	Anchors []string `yaml:"anchors"`
	Rewrite string   `yaml:"rewrite"`
	Tags    []string `yaml:"tags"`
}

// Exemplar is a whole source-language question with its canonical form.
type Exemplar struct {
	Source  string   `yaml:"source"`
	Rewrite string   `yaml:"rewrite"`
	Tags    []string `yaml:"tags"`
}

// LexiconCategory groups aliases by canonical token.
type LexiconCategory struct {
	Name    string              `yaml:"name"`
	Entries map[string][]string `yaml:"entries"`
}

// Example is a worked question/answer pair for the prompt.
type Example struct {
	Question string         `yaml:"question"`
	Output   map[string]any `yaml:"output"`
}

type measuresFile struct {
	Generic  []string  `yaml:"generic"`
	Measures []Measure `yaml:"measures"`
}

type dimensionsFile struct {
	Rank        Rank          `yaml:"rank"`
	Passthrough []Passthrough `yaml:"passthrough"`
	Dimensions  []Dimension   `yaml:"dimensions"`
}

type intentCuesFile struct {
	Rules []IntentRule `yaml:"rules"`
}

type languagesFile struct {
	Canonical string     `yaml:"canonical"`
	Languages []Language `yaml:"languages"`
}

type examplesFile struct {
	Examples []Example `yaml:"examples"`
}
