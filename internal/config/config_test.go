package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, root, content string) string {
	t.Helper()
	dir := filepath.Join(root, ".guardian")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_NoFiles(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with no files: %v", err)
	}
	if cfg.Workers != nil || cfg.FailOn != "" || len(cfg.Exclude) != 0 {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_GlobalOnly(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	writeConfig(t, home, "fail_on: medium\nworkers: 2\nexclude:\n  - fixtures/**\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FailOn != "medium" {
		t.Fatalf("expected FailOn medium, got %q", cfg.FailOn)
	}
	if cfg.Workers == nil || *cfg.Workers != 2 {
		t.Fatalf("expected Workers 2, got %v", cfg.Workers)
	}
	if len(cfg.Exclude) != 1 || cfg.Exclude[0] != "fixtures/**" {
		t.Fatalf("expected exclude list, got %v", cfg.Exclude)
	}
}

func TestLoad_LocalOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	repoRoot := t.TempDir()
	restoreWD := setWorkingDir(t, repoRoot)
	defer restoreWD()

	writeConfig(t, home, "format: json\nworkers: 2\nfail_on: medium\nrules_dir: [\"~/packs\"]\n")
	writeConfig(t, repoRoot, "format: sarif\nworkers: 1\nno_builtin_rules: true\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != "sarif" {
		t.Fatalf("expected local format sarif, got %q", cfg.Format)
	}
	if cfg.Workers == nil || *cfg.Workers != 1 {
		t.Fatalf("expected local Workers 1, got %v", cfg.Workers)
	}
	if cfg.FailOn != "medium" {
		t.Fatalf("expected global FailOn medium (not overridden), got %q", cfg.FailOn)
	}
	if len(cfg.RulesDirs) != 1 || cfg.RulesDirs[0] != "~/packs" {
		t.Fatalf("expected global rules_dir kept, got %v", cfg.RulesDirs)
	}
	if cfg.NoBuiltinRules == nil || !*cfg.NoBuiltinRules {
		t.Fatal("expected local no_builtin_rules")
	}
}

func TestLoadFiles_Order(t *testing.T) {
	a := writeConfig(t, t.TempDir(), "min_severity: low\ncategories: [injection]\n")
	b := writeConfig(t, t.TempDir(), "min_severity: high\n")

	cfg, err := LoadFiles(a, "", b)
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if cfg.MinSeverity != "high" || len(cfg.Categories) != 1 {
		t.Fatalf("unexpected merge: %+v", cfg)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	writeConfig(t, home, "{{invalid yaml")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config.yaml") {
		t.Fatalf("error should name the file: %v", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	writeConfig(t, home, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with empty file: %v", err)
	}
	if cfg.Format != "" {
		t.Fatalf("expected empty config from empty file, got Format=%q", cfg.Format)
	}
}

// ── Merge ───────────────────────────────────────────────────────────

func TestMerge_AllFields(t *testing.T) {
	workers1 := 1
	workers2 := 2
	maxBytes := int64(1024)
	debug := true
	noBuiltin := true

	a := Config{
		Workers:        &workers1,
		FailOn:         "high",
		MinSeverity:    "low",
		Format:         "json",
		RulesDirs:      []string{"dir1"},
		NoBuiltinRules: &noBuiltin,
		Exclude:        []string{"vendor/**"},
		MaxFileBytes:   &maxBytes,
		Suppressions:   "supp.yaml",
		Categories:     []string{"injection"},
		Debug:          &debug,
	}
	b := Config{
		Workers: &workers2,
		Format:  "sarif",
		Exclude: []string{"dist/**"},
	}

	result := merge(a, b)
	if result.Workers == nil || *result.Workers != 2 {
		t.Error("expected workers=2 from override")
	}
	if result.Format != "sarif" {
		t.Error("expected Format from override")
	}
	if len(result.Exclude) != 1 || result.Exclude[0] != "dist/**" {
		t.Errorf("expected exclude list replaced, got %v", result.Exclude)
	}
	if result.FailOn != "high" || result.Suppressions != "supp.yaml" {
		t.Error("expected untouched fields preserved from base")
	}
	if result.MaxFileBytes == nil || *result.MaxFileBytes != 1024 {
		t.Error("expected MaxFileBytes preserved from base")
	}
}

func TestMerge_NilPointersSafe(t *testing.T) {
	a := Config{FailOn: "critical"}
	result := merge(a, Config{})
	if result.FailOn != "critical" {
		t.Fatalf("merge should not override with zero value, got %q", result.FailOn)
	}
}

// ── Validate ────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	zero := 0
	four := 4
	negative := int64(-5)

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty", Config{}, ""},
		{"good", Config{Workers: &four, FailOn: "HIGH", MinSeverity: "low", Categories: []string{"ExposedSecret"}}, ""},
		{"zero workers", Config{Workers: &zero}, "workers must be between"},
		{"bad fail_on", Config{FailOn: "urgent"}, "fail_on: unknown severity"},
		{"bad min_severity", Config{MinSeverity: "info"}, "min_severity"},
		{"bad category", Config{Categories: []string{"xss"}}, "unknown category"},
		{"negative max bytes", Config{MaxFileBytes: &negative}, "max_file_bytes must be positive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want %q", err, tc.want)
			}
		})
	}
}

func setWorkingDir(t *testing.T, path string) func() {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(path); err != nil {
		t.Fatalf("chdir %s: %v", path, err)
	}
	return func() {
		if err := os.Chdir(oldWD); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	}
}
