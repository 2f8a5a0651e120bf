package config

import (
	"testing"
	"time"

	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_HostTable(t *testing.T) {
	// Shape of the table as it arrives from the host's JSON context.
	raw := map[string]any{
		"parallel_jobs": float64(4),
		"timeout":       "30s",
		"fail_fast":     true,
		"languages": map[string]any{
			"c": map[string]any{
				"compiler": "${CLANG}",
				"flags":    []any{"-fsyntax-only"},
				"preamble": "#include <stdio.h>",
				"variants": map[string]any{
					"c89": map[string]any{"flags": []any{"-std=c89", "-fsyntax-only"}},
				},
			},
			"python": map[string]any{"enabled": false},
		},
		"env": map[string]any{"CLANG": "clang"},
	}

	cfg, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Jobs())
	timeout, err := cfg.TaskTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, []string{"c", "python"}, cfg.LanguageNames())

	c := cfg.Languages["c"]
	assert.True(t, c.IsEnabled())
	assert.Equal(t, "${CLANG}", c.Compiler)
	require.NotNil(t, c.Preamble)
	assert.Equal(t, "#include <stdio.h>", *c.Preamble)
	assert.Equal(t, []string{"-std=c89", "-fsyntax-only"}, c.Variants["c89"].Flags)
	assert.Nil(t, c.Variants["c89"].Preamble)

	assert.False(t, cfg.Languages["python"].IsEnabled())
	assert.Equal(t, "clang", cfg.Env["CLANG"])
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Languages)
	assert.Equal(t, DefaultParallelJobs(), cfg.Jobs())
}

func TestDecode_IgnoresHostKeys(t *testing.T) {
	raw := map[string]any{
		"command":       "mdbook-check-code",
		"renderers":     []any{"html"},
		"before":        []any{"links"},
		"after":         []any{"index"},
		"optional":      true,
		"parallel_jobs": 2,
	}
	cfg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Jobs())
	assert.Contains(t, raw, "command", "caller's table is not modified")
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"unknown key", map[string]any{"paralel_jobs": 2}},
		{"negative jobs", map[string]any{"parallel_jobs": -1}},
		{"bad timeout", map[string]any{"timeout": "soon"}},
		{"missing compiler", map[string]any{"languages": map[string]any{"c": map[string]any{"flags": []any{"-x"}}}}},
		{"bad input mode", map[string]any{"languages": map[string]any{"c": map[string]any{"compiler": "cc", "input": "pipe"}}}},
		{"bad variant input", map[string]any{"languages": map[string]any{"c": map[string]any{
			"compiler": "cc",
			"variants": map[string]any{"v": map[string]any{"input": "socket"}},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig), "got %v", err)
		})
	}
}

func TestDecode_DisabledLanguageNeedsNoCompiler(t *testing.T) {
	_, err := Decode(map[string]any{"languages": map[string]any{"rust": map[string]any{"enabled": false}}})
	require.NoError(t, err)
}

func TestDecode_MissingCompilerNamesField(t *testing.T) {
	_, err := Decode(map[string]any{"languages": map[string]any{"go": map[string]any{}}})
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	field, _ := ce.Context().GetString("field")
	assert.Equal(t, "languages.go.compiler", field)
}
