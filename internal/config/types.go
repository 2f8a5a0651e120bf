package config

import (
	"fmt"
	"runtime"
	"time"
)

// SectionName is the key the configuration lives under in book.toml
// (`[preprocessor.check-code]`) and in the host context.
const SectionName = "check-code"

// InputMode selects how a compiler receives the source of a block.
type InputMode string

const (
	// InputFile stages the source in a file and passes its path as the last argument.
	InputFile InputMode = "file"
	// InputStdin pipes the source to the compiler's standard input.
	InputStdin InputMode = "stdin"
)

// Valid reports whether m is a known input mode; the empty mode means "inherit".
func (m InputMode) Valid() bool {
	return m == "" || m == InputFile || m == InputStdin
}

// Config is the decoded check-code configuration.
type Config struct {
	Languages map[string]LanguageConfig `yaml:"languages"`

	// ParallelJobs bounds concurrent compiler processes. Zero selects DefaultParallelJobs.
	ParallelJobs int `yaml:"parallel_jobs"`
	// Timeout is a Go duration applied to each compiler invocation; empty disables it.
	Timeout string `yaml:"timeout"`
	// FailFast stops dispatching queued blocks after the first failure.
	FailFast bool `yaml:"fail_fast"`
	// Env holds defaults for ${VAR} placeholders the process environment leaves unset.
	Env map[string]string `yaml:"env"`
}

// LanguageConfig configures one toolchain.
type LanguageConfig struct {
	Enabled      *bool                    `yaml:"enabled"`
	Compiler     string                   `yaml:"compiler"`
	Flags        []string                 `yaml:"flags"`
	Preamble     *string                  `yaml:"preamble"`
	FenceMarkers []string                 `yaml:"fence_markers"`
	Input        InputMode                `yaml:"input"`
	Variants     map[string]VariantConfig `yaml:"variants"`
}

// IsEnabled reports whether the language takes part in checking (default true).
func (l LanguageConfig) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// VariantConfig overrides fields of its base language. Unset fields inherit:
// an empty compiler, nil flags, nil preamble and empty input.
type VariantConfig struct {
	Compiler string    `yaml:"compiler"`
	Flags    []string  `yaml:"flags"`
	Preamble *string   `yaml:"preamble"`
	Input    InputMode `yaml:"input"`
}

// DefaultParallelJobs is the concurrency bound used when parallel_jobs is unset.
// Compiler runs are dominated by process startup and I/O, so the bound is a
// multiple of the CPU count.
func DefaultParallelJobs() int {
	return runtime.NumCPU() * 8
}

// Jobs returns the effective concurrency bound.
func (c *Config) Jobs() int {
	if c.ParallelJobs > 0 {
		return c.ParallelJobs
	}
	return DefaultParallelJobs()
}

// TaskTimeout parses Timeout. Zero means no timeout.
func (c *Config) TaskTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", c.Timeout)
	}
	return d, nil
}
