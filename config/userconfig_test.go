package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUserConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analysis.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadUserConfig(t *testing.T) {
	path := writeUserConfig(t, `
name: repo scan
disable-default-queries: true
queries:
  - security-extended
paths:
  - src
paths-ignore:
  - vendor
  - "**/testdata"
`)
	uc, err := LoadUserConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "repo scan", uc.Name)
	assert.True(t, uc.DisableDefaultSuites)
	assert.Equal(t, []string{"security-extended"}, uc.Queries)
	assert.Equal(t, []string{"src"}, uc.Paths)
	assert.Equal(t, []string{"vendor", "**/testdata"}, uc.PathsIgnore)
}

func TestLoadUserConfigMissing(t *testing.T) {
	_, err := LoadUserConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadUserConfigInvalidYAML(t *testing.T) {
	path := writeUserConfig(t, "queries: [unclosed")
	_, err := LoadUserConfig(path)
	assert.Error(t, err)
}

func TestQuerySuitesFor(t *testing.T) {
	tests := []struct {
		name    string
		queries string
		uc      *UserConfig
		want    []string
	}{
		{"default when nothing configured", "", nil, []string{"go-default"}},
		{"queries input replaces default", "security-extended", nil, []string{"security-extended"}},
		{"plus prefix keeps default", "+security-extended", nil, []string{"security-extended", "go-default"}},
		{"user config queries", "", &UserConfig{Queries: []string{"custom"}}, []string{"custom", "go-default"}},
		{"user config disables default", "", &UserConfig{Queries: []string{"custom"}, DisableDefaultSuites: true}, []string{"custom"}},
		{"input overrides user config", "security-and-quality", &UserConfig{Queries: []string{"custom"}}, []string{"security-and-quality"}},
		{"all plain entries run", "security-extended,security-and-quality", nil, []string{"security-extended", "security-and-quality"}},
		{"plus entry survives a plain sibling", "+extra,main", nil, []string{"extra", "main"}},
		{"plain entry after plus still replaces user config", "+extra,main", &UserConfig{Queries: []string{"custom"}}, []string{"extra", "main"}},
		{"only plus entries keep user config and default", "+a,+b", &UserConfig{Queries: []string{"custom"}}, []string{"custom", "a", "b", "go-default"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuerySuitesFor(LanguageGo, tt.queries, tt.uc)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtraEngineOptions(t *testing.T) {
	t.Setenv(EnvExtraOptions, `--ram=2048 "--threads=4"`)
	opts, err := ExtraEngineOptions()
	require.NoError(t, err)
	assert.Equal(t, []string{"--ram=2048", "--threads=4"}, opts)

	t.Setenv(EnvExtraOptions, "")
	opts, err = ExtraEngineOptions()
	require.NoError(t, err)
	assert.Nil(t, opts)

	t.Setenv(EnvExtraOptions, `"unclosed`)
	_, err = ExtraEngineOptions()
	assert.Error(t, err)
}
