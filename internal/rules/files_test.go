package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"guardian/internal/model"
)

const samplePack = `api_version: guardian/v1
rules:
  - id: org-001
    title: "Internal debug endpoint"
    category: broken_access_control
    severity: high
    source: builtin
    patterns:
      - mode: literal_substring
        literal: "/__debug"
    exemptions:
      - kind: path
        effect: full
        pattern: "^test/"
        reason: "test fixtures"
`

func writeRuleFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeRuleFile(t, t.TempDir(), "org.rules.yaml", samplePack)
	rs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rs))
	}
	r := rs[0]
	if r.ID != "ORG-001" || r.Category != model.CategoryBrokenAccessControl {
		t.Fatalf("unexpected rule: %+v", r)
	}
	if r.Source != SourceCustom {
		t.Fatalf("loaded rules must be custom, got %q", r.Source)
	}
	if _, err := NewRegistry(append(Builtin(), rs...)); err != nil {
		t.Fatalf("loaded rule should compile alongside built-ins: %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", "empty rule file"},
		{"missing api version", "rules: []\n", "api_version is required"},
		{"wrong api version", "api_version: guardian/v2\nrules: []\n", "unsupported api_version"},
		{"unknown field", "api_version: guardian/v1\nrulez: []\n", "rulez"},
		{"bad yaml", "api_version: [\n", "parse rules"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRuleFile(t, t.TempDir(), "x.rules.yaml", tc.content)
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("LoadFile() err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestLoadFileRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := writeRuleFile(t, dir, "real.rules.yaml", samplePack)
	link := filepath.Join(dir, "link.rules.yaml")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}
	if _, err := LoadFile(link); err == nil || !strings.Contains(err.Error(), "symlinked") {
		t.Fatalf("expected symlink rejection, got %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "b.rules.yml", strings.Replace(samplePack, "org-001", "org-002", 1))
	writeRuleFile(t, dir, "a.rules.yaml", samplePack)
	writeRuleFile(t, dir, "notes.yaml", "not a rule pack")
	if err := os.Mkdir(filepath.Join(dir, "nested.rules.yaml"), 0o700); err != nil {
		t.Fatal(err)
	}

	rs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(rs) != 2 || rs[0].ID != "ORG-001" || rs[1].ID != "ORG-002" {
		t.Fatalf("unexpected rules: %+v", rs)
	}
}

func TestLoadDirMissing(t *testing.T) {
	rs, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil || rs != nil {
		t.Fatalf("LoadDir(missing) = %v, %v", rs, err)
	}
}

func TestLoadPathsMixesFilesAndDirs(t *testing.T) {
	dir := t.TempDir()
	packDir := filepath.Join(dir, "packs")
	if err := os.Mkdir(packDir, 0o700); err != nil {
		t.Fatal(err)
	}
	writeRuleFile(t, packDir, "a.rules.yaml", samplePack)
	single := writeRuleFile(t, dir, "one.yaml", strings.Replace(samplePack, "org-001", "org-003", 1))

	rs, err := LoadPaths([]string{packDir, single, packDir})
	if err != nil {
		t.Fatalf("LoadPaths: %v", err)
	}
	if len(rs) != 2 || rs[1].ID != "ORG-003" {
		t.Fatalf("unexpected rules: %+v", rs)
	}

	if _, err := LoadPaths([]string{filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFindRepoRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o700); err != nil {
		t.Fatal(err)
	}
	deep := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(deep, 0o700); err != nil {
		t.Fatal(err)
	}
	got, err := findRepoRoot(deep)
	if err != nil {
		t.Fatal(err)
	}
	if got != root {
		t.Fatalf("findRepoRoot = %q, want %q", got, root)
	}
}
