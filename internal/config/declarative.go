package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"raillake/internal/domain"
)

type sourcesFile struct {
	Sources []domain.Source `yaml:"sources"`
}

type rulesFile struct {
	Rules []domain.Rule `yaml:"rules"`
}

// LoadSources reads and validates the declarative source registry.
// Source names must be unique; compression defaults to none.
func LoadSources(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	seen := make(map[string]bool, len(f.Sources))
	for i := range f.Sources {
		if f.Sources[i].Compression == "" {
			f.Sources[i].Compression = domain.CompressionNone
		}
		if err := f.Sources[i].Validate(); err != nil {
			return nil, fmt.Errorf("sources file %s: %w", path, err)
		}
		name := f.Sources[i].Name
		if seen[name] {
			return nil, fmt.Errorf("sources file %s: duplicate source %q", path, name)
		}
		seen[name] = true
	}
	return f.Sources, nil
}

// LoadRules reads and validates the declarative transformation rules.
// Rule names and target tables must be unique.
func LoadRules(path string) ([]domain.Rule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	names := make(map[string]bool, len(f.Rules))
	targets := make(map[string]bool, len(f.Rules))
	for _, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rules file %s: %w", path, err)
		}
		if names[r.Name] {
			return nil, fmt.Errorf("rules file %s: duplicate rule %q", path, r.Name)
		}
		names[r.Name] = true
		if targets[r.Target] {
			return nil, fmt.Errorf("rules file %s: table %q is targeted by more than one rule", path, r.Target)
		}
		targets[r.Target] = true
	}
	return f.Rules, nil
}
