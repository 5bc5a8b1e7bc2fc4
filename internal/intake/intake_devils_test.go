package intake

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Symlinks ---

func TestDiscover_SkipsSymlinkedFiles(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.js")
	if err := os.WriteFile(outside, []byte("const k = 1;\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	writeTree(t, root, map[string]string{"a.js": "a\n"})
	if err := os.Symlink(outside, filepath.Join(root, "link.js")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	res, err := Discover(Options{Paths: []string{root}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Files) != 1 || !strings.HasSuffix(res.Files[0].Display, "/a.js") {
		t.Fatalf("files = %+v", res.Files)
	}
	if res.SkippedByReason["symlink"] != 1 {
		t.Fatalf("expected one symlink skip, got %v", res.SkippedByReason)
	}
}

func TestDiscover_SkipsSymlinkedDirectories(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"x.js": "x\n"})
	if err := os.Symlink(outside, filepath.Join(root, "linked")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	res, err := Discover(Options{Paths: []string{root}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Files) != 0 {
		t.Fatalf("symlinked directory must not be followed: %+v", res.Files)
	}
}

// --- Odd inputs ---

func TestDiscover_EmptyDirectory(t *testing.T) {
	res, err := Discover(Options{Paths: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Files) != 0 || res.SkippedFiles != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDiscover_BlankPathsAreIgnored(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "a\n"})
	res, err := Discover(Options{Paths: []string{"  ", root, ""}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("files = %+v", res.Files)
	}
}

func TestDiscover_SingleByteFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.js": "x"})
	res, err := Discover(Options{Paths: []string{root}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Files) != 1 || res.Files[0].Size != 1 {
		t.Fatalf("files = %+v", res.Files)
	}
}

func TestDiscover_NonRegularInput(t *testing.T) {
	if _, err := os.Stat("/dev/null"); err != nil {
		t.Skip("no /dev/null")
	}
	if _, err := Discover(Options{Paths: []string{"/dev/null"}}); err == nil {
		t.Fatal("expected error for device input")
	}
}

func TestDiscover_HostileIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		IgnoreFileName: "[unclosed\n(((\n*.js\n!src/*.js\n",
		"src/a.js":     "a\n",
		"lib/b.js":     "b\n",
	})
	res, err := Discover(Options{Paths: []string{root}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Files) != 1 || !strings.HasSuffix(res.Files[0].Display, "src/a.js") {
		t.Fatalf("files = %+v", res.Files)
	}
}

func TestDiscover_OversizedIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{IgnoreFileName: strings.Repeat("#", maxIgnoreFileBytes+1)})
	if _, err := Discover(Options{Paths: []string{root}}); err == nil {
		t.Fatal("expected error for oversized ignore file")
	}
}

func TestHasSkippedDirComponent(t *testing.T) {
	tests := []struct {
		rel  string
		want bool
	}{
		{"node_modules/a.js", true},
		{"src/vendor/lib.go", true},
		{"a/b/.git/config", true},
		{"src/main.go", false},
		{"vendor", false},
		{"my_vendor/x.go", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := hasSkippedDirComponent(tt.rel); got != tt.want {
			t.Errorf("hasSkippedDirComponent(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}

func TestSkipDir(t *testing.T) {
	for _, name := range []string{".git", "node_modules", ".guardian"} {
		if !SkipDir(name) {
			t.Errorf("SkipDir(%q) = false", name)
		}
	}
	if SkipDir("src") {
		t.Error("SkipDir(src) = true")
	}
}

func TestIsScannable(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"app.tsx", true},
		{".env", true},
		{".env.production", true},
		{"dockerfile", true},
		{"schema.graphql", true},
		{"readme.md", false},
		{"notes.txt", false},
		{"env", false},
	}
	for _, tt := range tests {
		if got := isScannable(tt.name); got != tt.want {
			t.Errorf("isScannable(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
