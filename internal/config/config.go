package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"guardian/internal/model"
	"guardian/internal/safefile"
)

const maxConfigBytes = 1 << 20

// Config mirrors the scan flag names. Nil pointers and empty values mean
// "not set" so a later layer only overrides what it names.
type Config struct {
	Workers        *int     `yaml:"workers,omitempty"`
	FailOn         string   `yaml:"fail_on,omitempty"`
	MinSeverity    string   `yaml:"min_severity,omitempty"`
	Format         string   `yaml:"format,omitempty"`
	RulesDirs      []string `yaml:"rules_dir,omitempty"`
	NoBuiltinRules *bool    `yaml:"no_builtin_rules,omitempty"`
	Exclude        []string `yaml:"exclude,omitempty"`
	MaxFileBytes   *int64   `yaml:"max_file_bytes,omitempty"`
	Suppressions   string   `yaml:"suppressions,omitempty"`
	Categories     []string `yaml:"categories,omitempty"`
	Debug          *bool    `yaml:"debug,omitempty"`
}

// Paths returns the global and repo-local config locations, either of which
// may be empty when the home or working directory cannot be resolved.
func Paths() (global string, local string) {
	if home, _ := os.UserHomeDir(); home != "" {
		global = filepath.Join(home, ".guardian", "config.yaml")
	}
	if cwd, _ := os.Getwd(); cwd != "" {
		local = filepath.Join(cwd, ".guardian", "config.yaml")
	}
	return global, local
}

// Load reads config from layered sources:
//  1. ~/.guardian/config.yaml (global)
//  2. ./.guardian/config.yaml (repo-local, takes precedence)
//
// Missing files are silently ignored. Returns zero Config if neither exists.
func Load() (Config, error) {
	global, local := Paths()
	return LoadFiles(global, local)
}

// LoadFiles merges the given files in order; later files win. Empty paths
// are skipped.
func LoadFiles(paths ...string) (Config, error) {
	var merged Config
	for _, path := range paths {
		if path == "" {
			continue
		}
		cfg, err := loadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		merged = merge(merged, cfg)
	}
	return merged, nil
}

func loadFile(path string) (Config, error) {
	data, err := safefile.ReadFileLimited(path, maxConfigBytes)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// merge applies overrides from b onto a. Non-zero fields in b win; lists
// replace rather than append.
func merge(a, b Config) Config {
	if b.Workers != nil {
		a.Workers = b.Workers
	}
	if b.FailOn != "" {
		a.FailOn = b.FailOn
	}
	if b.MinSeverity != "" {
		a.MinSeverity = b.MinSeverity
	}
	if b.Format != "" {
		a.Format = b.Format
	}
	if len(b.RulesDirs) > 0 {
		a.RulesDirs = b.RulesDirs
	}
	if b.NoBuiltinRules != nil {
		a.NoBuiltinRules = b.NoBuiltinRules
	}
	if len(b.Exclude) > 0 {
		a.Exclude = b.Exclude
	}
	if b.MaxFileBytes != nil {
		a.MaxFileBytes = b.MaxFileBytes
	}
	if b.Suppressions != "" {
		a.Suppressions = b.Suppressions
	}
	if len(b.Categories) > 0 {
		a.Categories = b.Categories
	}
	if b.Debug != nil {
		a.Debug = b.Debug
	}
	return a
}

// Validate rejects values the scan command cannot use. Format names are
// checked by the report package.
func (c Config) Validate() error {
	var problems []string
	if c.Workers != nil && (*c.Workers < 1 || *c.Workers > 256) {
		problems = append(problems, fmt.Sprintf("workers must be between 1 and 256, got %d", *c.Workers))
	}
	if c.MaxFileBytes != nil && *c.MaxFileBytes < 1 {
		problems = append(problems, fmt.Sprintf("max_file_bytes must be positive, got %d", *c.MaxFileBytes))
	}
	for _, field := range []struct{ name, value string }{{"fail_on", c.FailOn}, {"min_severity", c.MinSeverity}} {
		if field.value == "" || (field.name == "fail_on" && strings.EqualFold(field.value, "none")) {
			continue
		}
		if _, err := model.ParseSeverity(field.value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", field.name, err))
		}
	}
	for _, raw := range c.Categories {
		if _, err := model.ParseCategory(raw); err != nil {
			problems = append(problems, fmt.Sprintf("categories: %v", err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
