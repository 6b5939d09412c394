package taxonomy_test

import (
	"errors"
	"io/fs"
	"path"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahar-caura/salestalk/internal/taxonomy"
	"github.com/shahar-caura/salestalk/vocab"
)

func loadDefault(t *testing.T) *taxonomy.Version {
	t.Helper()
	v, err := taxonomy.Load(vocab.FS, vocab.DefaultEnv, vocab.DefaultVersion)
	require.NoError(t, err)
	return v
}

// mapFS copies the embedded default version into a MapFS under test/v1 and
// applies overrides keyed by file name relative to the version directory.
func mapFS(t *testing.T, overrides map[string]string) fs.FS {
	t.Helper()
	m := fstest.MapFS{}
	root := path.Join(vocab.DefaultEnv, vocab.DefaultVersion)
	err := fs.WalkDir(vocab.FS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(vocab.FS, p)
		if err != nil {
			return err
		}
		rel := p[len(root)+1:]
		m[path.Join("test", "v1", rel)] = &fstest.MapFile{Data: data}
		return nil
	})
	require.NoError(t, err)
	for name, body := range overrides {
		if body == "" {
			delete(m, path.Join("test", "v1", name))
			continue
		}
		m[path.Join("test", "v1", name)] = &fstest.MapFile{Data: []byte(body)}
	}
	return m
}

func TestLoad_Default(t *testing.T) {
	v := loadDefault(t)

	assert.Equal(t, "default", v.Env)
	assert.Equal(t, "v1", v.Name)
	assert.Len(t, v.Digest, 12)
	assert.Equal(t, "en", v.Canonical())
	assert.NotEmpty(t, v.Subjects())
	assert.NotNil(t, v.Patterns())

	cs, ok := v.Language("cs")
	require.True(t, ok)
	require.NotNil(t, cs.Lexicon)
	assert.NotEmpty(t, cs.Examples)
}

func TestLoad_DigestIsStable(t *testing.T) {
	a := loadDefault(t)
	b := loadDefault(t)
	assert.Equal(t, a.ID(), b.ID())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		sentinel  error
		contains  string
	}{
		{
			name:      "missing file",
			overrides: map[string]string{"time.yaml": ""},
			sentinel:  taxonomy.ErrNotFound,
			contains:  "time.yaml",
		},
		{
			name:      "malformed yaml",
			overrides: map[string]string{"intents.yaml": "- name: [unclosed"},
			sentinel:  taxonomy.ErrMalformed,
		},
		{
			name: "subject references unknown measure",
			overrides: map[string]string{"subjects.yaml": `
- name: revenue
  intents: [what]
  measures: [revenue, mrr, arr, aov, ghost_metric]
- name: customers
  intents: [what]
  measures: [customer_count, churn_rate, arpu, nps, ltv]
- name: margin
  intents: [what]
  measures: [gm_pct, gross_margin]
- name: marketing
  intents: [what]
  measures: [signup_count, cac, conversion_rate]
`},
			sentinel: taxonomy.ErrIntegrity,
			contains: `unknown measure "ghost_metric"`,
		},
		{
			name: "alias collision between measures",
			overrides: map[string]string{"measures.yaml": `
measures:
  - {name: revenue, subject: revenue, aliases: [sales]}
  - {name: mrr, subject: revenue, aliases: [sales]}
  - {name: arr, subject: revenue}
  - {name: aov, subject: revenue}
  - {name: customer_count, subject: customers}
  - {name: churn_rate, subject: customers}
  - {name: arpu, subject: customers}
  - {name: nps, subject: customers}
  - {name: ltv, subject: customers}
  - {name: gm_pct, subject: margin}
  - {name: gross_margin, subject: margin}
  - {name: signup_count, subject: marketing}
  - {name: cac, subject: marketing}
  - {name: conversion_rate, subject: marketing}
`},
			sentinel: taxonomy.ErrIntegrity,
			contains: `alias "sales" collides`,
		},
		{
			name: "measure alias names a foreign subject",
			overrides: map[string]string{"measures.yaml": `
measures:
  - {name: revenue, subject: revenue}
  - {name: mrr, subject: revenue}
  - {name: arr, subject: revenue}
  - {name: aov, subject: revenue}
  - {name: customer_count, subject: customers}
  - {name: churn_rate, subject: customers, aliases: [campaigns]}
  - {name: arpu, subject: customers}
  - {name: nps, subject: customers}
  - {name: ltv, subject: customers}
  - {name: gm_pct, subject: margin}
  - {name: gross_margin, subject: margin}
  - {name: signup_count, subject: marketing}
  - {name: cac, subject: marketing}
  - {name: conversion_rate, subject: marketing}
`},
			sentinel: taxonomy.ErrIntegrity,
			contains: `alias "campaigns" is also subject "marketing"`,
		},
		{
			name:      "no intents",
			overrides: map[string]string{"intents.yaml": "[]"},
			sentinel:  taxonomy.ErrIntegrity,
			contains:  "no intents defined",
		},
		{
			name: "synonym targets unknown value",
			overrides: map[string]string{"dimensions.yaml": `
rank: {max_limit: 10, top_triggers: [top], bottom_triggers: [bottom]}
dimensions:
  - name: region
    values: [EMEA]
    synonyms: {mars: MARS}
`},
			sentinel: taxonomy.ErrIntegrity,
			contains: `targets unknown value "MARS"`,
		},
		{
			name:      "non-canonical language without lexicon",
			overrides: map[string]string{"lexicons/cs.yaml": ""},
			sentinel:  taxonomy.ErrNotFound,
			contains:  "lexicons/cs.yaml",
		},
		{
			name: "bad phrase pattern",
			overrides: map[string]string{"time.yaml": `
granularities: [month]
phrases:
  - {pattern: '(unclosed', granularity: month}
`},
			sentinel: taxonomy.ErrIntegrity,
			contains: "time phrase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := taxonomy.Load(mapFS(t, tt.overrides), "test", "v1")
			require.Error(t, err)

			var le *taxonomy.LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, "test", le.Env)
			assert.ErrorIs(t, err, tt.sentinel)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestLoad_UnknownVersion(t *testing.T) {
	_, err := taxonomy.Load(vocab.FS, vocab.DefaultEnv, "v999")
	require.Error(t, err)
	assert.ErrorIs(t, err, taxonomy.ErrNotFound)
}
