// Package toolchain resolves the check-code configuration into an immutable
// lookup table from fence tokens to fully expanded compiler invocations.
package toolchain

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"git.home.luguber.info/inful/checkcode/internal/config"
	"git.home.luguber.info/inful/checkcode/internal/extract"
	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"git.home.luguber.info/inful/checkcode/internal/logfields"
)

// Resolved is the merged, placeholder-free toolchain for a language or a
// language/variant pair.
type Resolved struct {
	Language   string
	Variant    string
	Executable string
	Args       []string
	// Preamble is empty or ends with a newline.
	Preamble  string
	Input     config.InputMode
	Extension string
}

// Label names the toolchain in reports: "c" or "c:c89".
func (r Resolved) Label() string {
	if r.Variant == "" {
		return r.Language
	}
	return r.Language + ":" + r.Variant
}

type language struct {
	base     Resolved
	variants map[string]Resolved
}

// Table maps fence tokens to resolved toolchains. It is safe for concurrent
// reads once built.
type Table struct {
	markers   map[string]string
	languages map[string]language
}

// Resolve builds the lookup table. Disabled languages contribute nothing.
// When two languages claim the same marker the lexicographically first
// language keeps it and the collision is logged.
func Resolve(cfg *config.Config, x *config.Expander, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Table{
		markers:   make(map[string]string),
		languages: make(map[string]language),
	}

	for _, name := range cfg.LanguageNames() {
		lc := cfg.Languages[name]
		if !lc.IsEnabled() {
			continue
		}

		field := "languages." + name
		base, err := resolveBase(name, lc, x, field)
		if err != nil {
			return nil, err
		}
		lang := language{base: base, variants: make(map[string]Resolved, len(lc.Variants))}
		for vname, vc := range lc.Variants {
			v, err := resolveVariant(base, extract.Normalize(vname), vc, x, field+".variants."+vname)
			if err != nil {
				return nil, err
			}
			lang.variants[v.Variant] = v
		}
		t.languages[name] = lang

		for _, marker := range lc.Markers(name) {
			marker = extract.Normalize(strings.TrimSpace(marker))
			if marker == "" {
				continue
			}
			if owner, taken := t.markers[marker]; taken {
				if owner != name {
					logger.Warn("Fence marker claimed by more than one language",
						slog.String("marker", marker),
						logfields.Language(owner),
						slog.String("ignored", name))
				}
				continue
			}
			t.markers[marker] = name
		}
	}
	return t, nil
}

func resolveBase(name string, lc config.LanguageConfig, x *config.Expander, field string) (Resolved, error) {
	r := Resolved{
		Language:  name,
		Input:     lc.Input,
		Extension: config.FileExtension(name),
	}
	if r.Input == "" {
		r.Input = config.InputFile
	}

	var err error
	if r.Executable, err = expandCompiler(lc.Compiler, x, field+".compiler"); err != nil {
		return Resolved{}, err
	}
	if r.Args, err = expandFlags(lc.Flags, x, field+".flags"); err != nil {
		return Resolved{}, err
	}
	if lc.Preamble != nil {
		if r.Preamble, err = expandPreamble(*lc.Preamble, x, field+".preamble"); err != nil {
			return Resolved{}, err
		}
	}
	return r, nil
}

func resolveVariant(base Resolved, vname string, vc config.VariantConfig, x *config.Expander, field string) (Resolved, error) {
	r := base
	r.Variant = vname
	r.Args = append([]string(nil), base.Args...)

	var err error
	if vc.Compiler != "" {
		if r.Executable, err = expandCompiler(vc.Compiler, x, field+".compiler"); err != nil {
			return Resolved{}, err
		}
	}
	if vc.Flags != nil {
		if r.Args, err = expandFlags(vc.Flags, x, field+".flags"); err != nil {
			return Resolved{}, err
		}
	}
	if vc.Preamble != nil {
		if r.Preamble, err = expandPreamble(*vc.Preamble, x, field+".preamble"); err != nil {
			return Resolved{}, err
		}
	}
	if vc.Input != "" {
		r.Input = vc.Input
	}
	return r, nil
}

func expandCompiler(s string, x *config.Expander, field string) (string, error) {
	v, err := expand(s, x, field)
	if err != nil {
		return "", err
	}
	if err := ValidateCompiler(v); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryConfig, "invalid compiler").
			WithContext("field", field).
			WithContext("compiler", v).
			Fatal().UserAction().Build()
	}
	return v, nil
}

func expandFlags(flags []string, x *config.Expander, field string) ([]string, error) {
	out := make([]string, len(flags))
	for i, f := range flags {
		v, err := expand(f, x, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func expandPreamble(s string, x *config.Expander, field string) (string, error) {
	v, err := expand(s, x, field)
	if err != nil {
		return "", err
	}
	if v != "" && !strings.HasSuffix(v, "\n") {
		v += "\n"
	}
	return v, nil
}

func expand(s string, x *config.Expander, field string) (string, error) {
	v, err := x.Expand(s, field)
	if err == nil {
		return v, nil
	}
	b := ferrors.WrapError(err, ferrors.CategoryConfig, "cannot resolve configuration value").
		WithContext("field", field).Fatal().UserAction()
	var unresolved *config.UnresolvedVariableError
	if errors.As(err, &unresolved) {
		b = b.WithContext("variable", unresolved.Variable)
	}
	return "", b.Build()
}

// Lookup returns the toolchain for a fence token and optional variant.
// ok is false when no enabled language claims the token. An unknown variant
// on a claimed token is a configuration error.
func (t *Table) Lookup(token, variant string) (r Resolved, ok bool, err error) {
	name, ok := t.markers[token]
	if !ok {
		return Resolved{}, false, nil
	}
	lang := t.languages[name]
	if variant == "" {
		return lang.base, true, nil
	}
	v, found := lang.variants[variant]
	if !found {
		return Resolved{}, true, ferrors.ConfigError("unknown variant").
			WithContext("language", name).
			WithContext("variant", variant).
			WithContext("field", "languages."+name+".variants."+variant).
			Build()
	}
	return v, true, nil
}

// Markers returns the claimed fence markers and their languages, sorted by marker.
func (t *Table) Markers() []Marker {
	out := make([]Marker, 0, len(t.markers))
	for m, lang := range t.markers {
		out = append(out, Marker{Marker: m, Language: lang})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Marker < out[j].Marker })
	return out
}

// Marker is one entry of the marker table.
type Marker struct {
	Marker   string
	Language string
}

// All returns every resolved toolchain, base languages and variants, sorted by label.
func (t *Table) All() []Resolved {
	var out []Resolved
	for _, lang := range t.languages {
		out = append(out, lang.base)
		for _, v := range lang.variants {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Language != out[j].Language {
			return out[i].Language < out[j].Language
		}
		return out[i].Variant < out[j].Variant
	})
	return out
}

// Len reports the number of enabled languages.
func (t *Table) Len() int {
	return len(t.languages)
}
