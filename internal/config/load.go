package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// CandidateFiles lists the configuration files Discover looks for, in order.
var CandidateFiles = []string{"book.toml", "checkcode.yaml", "checkcode.yml", ".checkcode.yaml"}

// Discover returns the first configuration file present in dir.
func Discover(dir string) (string, error) {
	for _, name := range CandidateFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ferrors.ConfigError("no configuration file found").
		WithContext("dir", dir).
		WithContext("looked_for", strings.Join(CandidateFiles, ", ")).
		Build()
}

// LoadFile reads the raw check-code table from a book.toml or YAML file.
//
// In book.toml the table lives under [preprocessor.check-code]. A YAML file
// is either the table itself or wraps it in a top-level "check-code" key.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read configuration file").
			WithContext("path", path).Fatal().Build()
	}

	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, parseError(err, path)
		}
		return tomlSection(doc)
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, parseError(err, path)
		}
		if nested, ok := doc[SectionName].(map[string]any); ok {
			return nested, nil
		}
		return doc, nil
	default:
		return nil, ferrors.ConfigError("unsupported configuration file type").
			WithContext("path", path).Build()
	}
}

// Load reads and decodes a configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func tomlSection(doc map[string]any) (map[string]any, error) {
	pre, ok := doc["preprocessor"].(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	section, ok := pre[SectionName]
	if !ok {
		return map[string]any{}, nil
	}
	m, ok := section.(map[string]any)
	if !ok {
		return nil, ferrors.ConfigError("preprocessor." + SectionName + " must be a table").Build()
	}
	return m, nil
}

func parseError(err error, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryConfig, "parse configuration file").
		WithContext("path", path).Fatal().UserAction().Build()
}
