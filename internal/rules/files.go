package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"guardian/internal/safefile"
)

const maxRuleFileBytes = 2 * 1024 * 1024

// DefaultDirs returns the rule pack directories searched when none is given:
// <repo>/.guardian/rules, then ~/.guardian/rules.
func DefaultDirs() ([]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	repo, err := findRepoRoot(cwd)
	if err != nil {
		return nil, err
	}
	home, err := expandHome("~/.guardian/rules")
	if err != nil {
		return nil, err
	}
	var dirs []string
	if repo != "" {
		dirs = append(dirs, filepath.Join(repo, ".guardian", "rules"))
	}
	return dedupePaths(append(dirs, home)), nil
}

// LoadFile reads a rule pack. Rules are returned normalized but not
// validated; NewRegistry or Validate does that. Loaded rules are always
// marked custom.
func LoadFile(path string) ([]Rule, error) {
	b, err := safefile.ReadFileLimited(path, maxRuleFileBytes)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	pack, err := decodePack(b)
	if err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	out := make([]Rule, 0, len(pack.Rules))
	for _, r := range pack.Rules {
		r.Source = SourceCustom
		out = append(out, NormalizeRule(r))
	}
	return out, nil
}

func decodePack(b []byte) (Pack, error) {
	var pack Pack
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil {
		if errors.Is(err, io.EOF) {
			return Pack{}, fmt.Errorf("empty rule file")
		}
		return Pack{}, err
	}
	switch strings.TrimSpace(pack.APIVersion) {
	case APIVersion:
	case "":
		return Pack{}, fmt.Errorf("api_version is required (want %s)", APIVersion)
	default:
		return Pack{}, fmt.Errorf("unsupported api_version %q (want %s)", pack.APIVersion, APIVersion)
	}
	return pack, nil
}

// LoadDir reads every *.rules.yaml and *.rules.yml file in dir in name
// order. A missing directory yields no rules.
func LoadDir(dir string) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".rules.yaml") || strings.HasSuffix(name, ".rules.yml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []Rule
	for _, name := range names {
		rs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

// LoadPaths loads each path as a file or a directory. Unlike LoadDir a
// missing path is an error.
func LoadPaths(paths []string) ([]Rule, error) {
	var out []Rule
	for _, raw := range dedupePaths(paths) {
		path, err := expandHome(raw)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("read rules %s: %w", path, err)
		}
		load := LoadFile
		if info.IsDir() {
			load = LoadDir
		}
		rs, err := load(path)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

// expandHome resolves a leading ~ and returns an absolute path.
func expandHome(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve rules path %q: %w", raw, err)
	}
	return abs, nil
}

// findRepoRoot walks up from start to the first directory holding .git.
// It returns "" when there is none.
func findRepoRoot(start string) (string, error) {
	dir, err := filepath.Abs(strings.TrimSpace(start))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	for {
		_, err := os.Stat(filepath.Join(dir, ".git"))
		switch {
		case err == nil:
			return dir, nil
		case !os.IsNotExist(err):
			return "", fmt.Errorf("stat %s: %w", filepath.Join(dir, ".git"), err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func dedupePaths(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range in {
		if strings.TrimSpace(p) == "" {
			continue
		}
		p = filepath.Clean(strings.TrimSpace(p))
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
