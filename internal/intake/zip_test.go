package intake

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"guardian/internal/rules"
	"guardian/internal/scan"
)

func createZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverZip_FiltersEntries(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	createZip(t, "src.zip", map[string]string{
		"src/main.go":     "package main\n",
		"README.md":       "ok",
		".git/config":     "skip",
		"image.png":       "skip",
		".env":            "OPENAI_API_KEY=test\n",
		"fixtures/bad.js": "eval(x)\n",
		IgnoreFileName:    "fixtures/\n",
		"dist/app.js":     "bundled\n",
	})

	res, err := Discover(Options{Paths: []string{"src.zip"}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	defer res.Close()

	if got := strings.Join(displays(res), ","); got != "src.zip!/.env,src.zip!/src/main.go" {
		t.Fatalf("displays = %s", got)
	}
	if res.SkippedByReason["skip_dir"] != 2 || res.SkippedByReason["ignored"] != 1 {
		t.Fatalf("skips = %v", res.SkippedByReason)
	}
}

func TestDiscoverZip_ScansEntries(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	createZip(t, "app.zip", map[string]string{
		"src/hash.js": "const h = crypto.createHash('md5');\n",
		"src/ok.js":   "const x = 1;\n",
	})

	res, err := Discover(Options{Paths: []string{"app.zip"}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	defer res.Close()

	reg, err := rules.NewRegistry(rules.Builtin())
	if err != nil {
		t.Fatal(err)
	}
	out, err := scan.Run(context.Background(), reg, res.Inputs(0), scan.Options{Workers: 4})
	if err != nil {
		t.Fatalf("scan.Run: %v", err)
	}
	if len(out.Findings) != 1 || out.Findings[0].Path != "app.zip!/src/hash.js" {
		t.Fatalf("findings = %+v", out.Findings)
	}
}

func TestDiscoverZip_EntryOverLimitIsReported(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "big.zip")
	createZip(t, zipPath, map[string]string{"src/main.js": "const a = 'abcdefghijklmnopqrstuvwxyz';\n"})

	res, err := Discover(Options{Paths: []string{zipPath}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	defer res.Close()

	inputs := res.Inputs(8)
	if _, err := inputs[0].Read(); err == nil || !strings.Contains(err.Error(), "exceeds 8 bytes") {
		t.Fatalf("expected size error, got %v", err)
	}
}
