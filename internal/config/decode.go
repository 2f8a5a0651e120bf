package config

import (
	"bytes"
	"fmt"
	"sort"

	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"gopkg.in/yaml.v3"
)

// HostKeys are keys the host reads from every preprocessor table. They are
// dropped before strict decoding.
var HostKeys = []string{"command", "renderers", "before", "after", "optional"}

// Decode converts an already-decoded configuration table into a Config.
//
// The table may come from the host's JSON context, a TOML file or a YAML
// file; it is re-encoded as YAML and decoded strictly so unknown keys are
// reported instead of silently ignored.
func Decode(raw map[string]any) (*Config, error) {
	cfg := &Config{}
	raw = withoutHostKeys(raw)
	if len(raw) > 0 {
		data, err := yaml.Marshal(raw)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "encode configuration").Fatal().Build()
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "decode configuration").
				Fatal().UserAction().Build()
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withoutHostKeys(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for _, k := range HostKeys {
		delete(out, k)
	}
	return out
}

// Validate checks structural rules that do not depend on the environment.
func (c *Config) Validate() error {
	if c.ParallelJobs < 0 {
		return ferrors.ConfigError("parallel_jobs must not be negative").
			WithContext("parallel_jobs", c.ParallelJobs).Build()
	}
	if _, err := c.TaskTimeout(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid timeout").Fatal().UserAction().Build()
	}

	for _, name := range c.LanguageNames() {
		lang := c.Languages[name]
		field := "languages." + name
		if !lang.Input.Valid() {
			return invalidInput(field, lang.Input)
		}
		if !lang.IsEnabled() {
			continue
		}
		if lang.Compiler == "" {
			return ferrors.ConfigError("compiler is required").WithContext("field", field+".compiler").Build()
		}
		for vname, variant := range lang.Variants {
			if !variant.Input.Valid() {
				return invalidInput(fmt.Sprintf("%s.variants.%s", field, vname), variant.Input)
			}
		}
	}
	return nil
}

func invalidInput(field string, mode InputMode) error {
	return ferrors.ConfigError(fmt.Sprintf("input must be %q or %q", InputFile, InputStdin)).
		WithContext("field", field+".input").
		WithContext("value", string(mode)).
		Build()
}

// LanguageNames returns the configured language names in lexicographic order.
// This order decides which language wins when two claim the same fence marker.
func (c *Config) LanguageNames() []string {
	names := make([]string, 0, len(c.Languages))
	for name := range c.Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
