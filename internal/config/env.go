package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(string) (string, bool)

// UnresolvedVariableError reports a ${VAR} placeholder with no value and no default.
type UnresolvedVariableError struct {
	Variable string
	Field    string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("environment variable %q used in %s is not set and has no default", e.Variable, e.Field)
}

// MalformedPlaceholderError reports a placeholder that cannot be parsed.
type MalformedPlaceholderError struct {
	Placeholder string
	Field       string
}

func (e *MalformedPlaceholderError) Error() string {
	return fmt.Sprintf("malformed placeholder %q in %s", e.Placeholder, e.Field)
}

// Expander substitutes ${VAR} and ${VAR:-default} placeholders.
type Expander struct {
	lookup   LookupFunc
	defaults map[string]string
}

// NewExpander creates an Expander that consults lookup first, then defaults.
func NewExpander(lookup LookupFunc, defaults map[string]string) *Expander {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Expander{lookup: lookup, defaults: defaults}
}

// Expand substitutes every placeholder in s. field names the configuration
// key s came from and is used in errors.
func (x *Expander) Expand(s, field string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])

		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", &MalformedPlaceholderError{Placeholder: rest[start:], Field: field}
		}
		body := rest[start+2 : start+end]
		value, err := x.resolve(body, field)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		rest = rest[start+end+1:]
	}
}

func (x *Expander) resolve(body, field string) (string, error) {
	name, fallback, hasFallback := strings.Cut(body, ":-")
	if !validVariableName(name) {
		return "", &MalformedPlaceholderError{Placeholder: "${" + body + "}", Field: field}
	}

	if v, ok := x.lookup(name); ok {
		// Shell semantics: ":-" also replaces an empty value.
		if v != "" || !hasFallback {
			return v, nil
		}
	}
	if hasFallback {
		return fallback, nil
	}
	if v, ok := x.defaults[name]; ok {
		return v, nil
	}
	return "", &UnresolvedVariableError{Variable: name, Field: field}
}

func validVariableName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// DotEnvFiles are read by ReadDotEnv in order; later files win.
var DotEnvFiles = []string{".env", ".env.local"}

// ReadDotEnv reads the DotEnvFiles present in dir into a map. The process
// environment is never modified; the values only reach the configuration
// through WithDotEnv. It also returns the files that were read.
func ReadDotEnv(dir string) (map[string]string, []string, error) {
	vars := map[string]string{}
	var read []string
	for _, name := range DotEnvFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, read, fmt.Errorf("read %s: %w", path, err)
		}
		for k, v := range values {
			vars[k] = v
		}
		read = append(read, path)
	}
	return vars, read, nil
}

// WithDotEnv returns a LookupFunc that consults lookup first and falls back
// to vars, so the process environment takes precedence over .env files.
func WithDotEnv(lookup LookupFunc, vars map[string]string) LookupFunc {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if len(vars) == 0 {
		return lookup
	}
	return func(name string) (string, bool) {
		if v, ok := lookup(name); ok {
			return v, true
		}
		v, ok := vars[name]
		return v, ok
	}
}
