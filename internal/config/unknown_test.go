package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKeySuggestion(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, `
[bus]
urll = "ws://localhost:1/bus"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "urll" in [bus], did you mean "url"?`)
}

func TestLoad_UnknownSectionSuggestion(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, `
[loging]
log_level = "debug"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config section [loging], did you mean "logging"?`)
	assert.NotContains(t, err.Error(), "log_level")
}

func TestLoad_UnknownKeyNoSuggestion(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, `
[view]
completely_unrelated = true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "completely_unrelated" in [view]`)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"url", "url", 0},
		{"urll", "url", 1},
		{"kitten", "sitting", 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%s -> %s", tt.a, tt.b)
	}
}

func TestClosestMatch(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "retention", closestMatch("retension", []string{"enabled", "path", "retention"}))
	assert.Empty(t, closestMatch("xyzzy", []string{"enabled", "path", "retention"}))
}
