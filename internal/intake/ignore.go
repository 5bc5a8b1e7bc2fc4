package intake

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"guardian/internal/safefile"
)

const maxIgnoreFileBytes = 256 * 1024

// IgnoreRules is a compiled set of gitignore-style patterns. The zero value
// and a nil pointer ignore nothing.
type IgnoreRules struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	negated bool
	dirOnly bool
	regex   *regexp.Regexp
}

// LoadIgnoreFile parses a .guardianignore file. A missing file yields nil
// rules and no error.
func LoadIgnoreFile(path string) (*IgnoreRules, error) {
	data, err := safefile.ReadFileLimited(path, maxIgnoreFileBytes)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return ParseIgnorePatterns(strings.Split(string(data), "\n")), nil
}

// ParseIgnorePatterns compiles pattern lines. Blank lines and # comments
// are skipped, a leading ! negates, a trailing / matches directories only
// and a leading / anchors the pattern to the scan root. Lines that do not
// compile are dropped.
func ParseIgnorePatterns(lines []string) *IgnoreRules {
	rules := &IgnoreRules{}
	for _, raw := range lines {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var p ignorePattern
		if strings.HasPrefix(line, "!") {
			p.negated = true
			line = line[1:]
		}
		line = strings.TrimPrefix(line, `\`)
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if line == "" {
			continue
		}

		re, err := regexp.Compile(ignoreGlobToRegex(line))
		if err != nil {
			continue
		}
		p.regex = re
		rules.patterns = append(rules.patterns, p)
	}
	return rules
}

func (r *IgnoreRules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}

// ShouldIgnore reports whether relPath is excluded. The last matching
// pattern wins.
func (r *IgnoreRules) ShouldIgnore(relPath string, isDir bool) bool {
	if r.Len() == 0 {
		return false
	}
	relPath = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(relPath)), "./")
	if relPath == "" {
		return false
	}

	ignored := false
	for _, p := range r.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if p.regex.MatchString(relPath) {
			ignored = !p.negated
		}
	}
	return ignored
}

// ignoreGlobToRegex converts a gitignore-style glob to an anchored regex.
// Patterns without an inner slash match a basename at any depth.
func ignoreGlobToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	glob = filepath.ToSlash(glob)
	if strings.HasPrefix(glob, "/") {
		glob = strings.TrimPrefix(glob, "/")
	} else if !strings.Contains(glob, "/") {
		b.WriteString("(?:.*/)?")
	}

	r := []rune(glob)
	for i := 0; i < len(r); i++ {
		switch r[i] {
		case '*':
			if i+1 < len(r) && r[i+1] == '*' {
				if i+2 < len(r) && r[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteString("\\")
			b.WriteRune(r[i])
		default:
			b.WriteRune(r[i])
		}
	}
	b.WriteString("$")
	return b.String()
}
