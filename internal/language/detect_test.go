package language_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahar-caura/salestalk/internal/language"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
	"github.com/shahar-caura/salestalk/vocab"
)

func newDetector(t *testing.T) *language.Detector {
	t.Helper()
	v, err := taxonomy.Load(vocab.FS, vocab.DefaultEnv, vocab.DefaultVersion)
	require.NoError(t, err)
	return language.New(v)
}

func TestDetect(t *testing.T) {
	d := newDetector(t)

	tests := []struct {
		name   string
		text   string
		lang   string
		conf   float64
		method string
	}{
		{"english", "What is Q3 revenue?", "en", 0.7, language.MethodDefault},
		{"czech without diacritics", "Jake jsou nase trzby v Q3?", "cs", 1.0, language.MethodStopwords},
		{"czech with diacritics", "Jaké jsou naše tržby v Q3?", "cs", 1.0, language.MethodStopwords + "+" + language.MethodDiacritics},
		{"two stopwords", "proc jsou trzby nizke", "cs", 0.95, language.MethodStopwords},
		{"diacritics only", "tržby Q3", "cs", 0.75, language.MethodDiacritics},
		{"empty", "   ", "en", 0.5, language.MethodDefault},
		{"shared stopwords ignored", "a v to", "en", 0.7, language.MethodDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.text)
			assert.Equal(t, tt.lang, got.Language)
			assert.InDelta(t, tt.conf, got.Confidence, 1e-9)
			assert.Equal(t, tt.method, got.Method)
		})
	}
}

func TestDetect_Density(t *testing.T) {
	d := newDetector(t)

	// One exclusive stopword out of three words.
	got := d.Detect("kolik signups celkem")
	assert.Equal(t, "cs", got.Language)
	assert.Equal(t, language.MethodDensity, got.Method)
	assert.InDelta(t, 0.75+0.2/3, got.Confidence, 1e-9)

	// One exclusive stopword diluted below the density threshold.
	got = d.Detect("kolik signups did we get in EMEA")
	assert.Equal(t, "en", got.Language)
}

func TestDetect_ConfidenceBounded(t *testing.T) {
	d := newDetector(t)
	got := d.Detect("jaké jsou naše tržby a kolik je to proč kde kdy co kdo")
	assert.LessOrEqual(t, got.Confidence, 1.0)
	assert.GreaterOrEqual(t, got.Confidence, 0.0)
}
