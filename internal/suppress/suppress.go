package suppress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"guardian/internal/model"
	"guardian/internal/safefile"

	"gopkg.in/yaml.v3"
)

const maxSuppressionsBytes = 1 << 20

// DefaultPath returns the conventional suppressions file under root.
func DefaultPath(root string) string {
	return filepath.Join(root, ".guardian", "suppressions.yaml")
}

// Load reads suppression rules. A missing or empty file yields no rules.
// Every rule must carry a reason.
func Load(path string) ([]Rule, error) {
	data, err := safefile.ReadFileLimited(path, maxSuppressionsBytes)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read suppressions: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var sf suppressionsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse suppressions %s: %w", path, err)
	}
	for i, rule := range sf.Suppressions {
		norm, err := normalizeRule(rule)
		if err != nil {
			return nil, fmt.Errorf("suppression rule %d: %w", i+1, err)
		}
		sf.Suppressions[i] = norm
	}
	return EnsureRuleIDs(sf.Suppressions), nil
}

// normalizeRule requires a reason and rewrites severity and category to
// their canonical spelling so matching can compare them directly.
func normalizeRule(r Rule) (Rule, error) {
	if strings.TrimSpace(r.Reason) == "" {
		return r, fmt.Errorf("reason is required")
	}
	if r.Severity != "" {
		sev, err := model.ParseSeverity(r.Severity)
		if err != nil {
			return r, err
		}
		r.Severity = string(sev)
	}
	if r.Category != "" {
		cat, err := model.ParseCategory(r.Category)
		if err != nil {
			return r, err
		}
		r.Category = string(cat)
	}
	return r, nil
}

// Save writes rules atomically in the canonical layout.
func Save(path string, rules []Rule) error {
	data, err := yaml.Marshal(suppressionsFile{Suppressions: EnsureRuleIDs(rules)})
	if err != nil {
		return fmt.Errorf("marshal suppressions: %w", err)
	}
	if _, err := safefile.EnsureDir(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create suppressions dir: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write suppressions: %w", err)
	}
	return nil
}

// EnsureRuleIDs returns a copy of rules where every id is normalized,
// present and unique. Clashing ids get a numeric suffix.
func EnsureRuleIDs(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		r.ID = normalizeRuleID(r.ID)
		if r.ID == "" {
			r.ID = generateRuleID(r)
		}
		id := r.ID
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("%s-%d", r.ID, n)
		}
		r.ID = id
		seen[id] = true
		out[i] = r
	}
	return out
}

type MatchOptions struct {
	IDPattern string
	RuleID    string
	Category  string
	Files     string
	Severity  string
}

func (o MatchOptions) empty() bool {
	return blank(o.IDPattern) && blank(o.RuleID) && blank(o.Category) && blank(o.Files) && blank(o.Severity)
}

// RemoveMatching partitions rules into kept and removed.
func RemoveMatching(rules []Rule, opts MatchOptions) (kept []Rule, removed []Rule) {
	kept = make([]Rule, 0, len(rules))
	for _, rule := range EnsureRuleIDs(rules) {
		if RuleMatches(rule, opts) {
			removed = append(removed, rule)
		} else {
			kept = append(kept, rule)
		}
	}
	return kept, removed
}

// RuleMatches reports whether a stored rule matches every option given.
// Empty options match nothing.
func RuleMatches(rule Rule, opts MatchOptions) bool {
	if opts.empty() {
		return false
	}
	globs := [][2]string{{opts.IDPattern, rule.ID}, {opts.RuleID, rule.RuleID}, {opts.Files, rule.Files}}
	for _, g := range globs {
		if !blank(g[0]) && !matchGlob(g[0], g[1]) {
			return false
		}
	}
	exact := [][2]string{{opts.Category, rule.Category}, {opts.Severity, rule.Severity}}
	for _, e := range exact {
		if !blank(e[0]) && !strings.EqualFold(strings.TrimSpace(e[0]), strings.TrimSpace(e[1])) {
			return false
		}
	}
	return true
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// matchFileRules returns the first unexpired rule covering the finding
// described by ruleID, category, severity and path.
func matchFileRules(rules []Rule, now time.Time, ruleID string, cat model.Category, sev model.Severity, path string) (Rule, bool) {
	for _, r := range rules {
		if r.IsExpired(now) {
			continue
		}
		if fileRuleMatches(r, ruleID, cat, sev, path) {
			return r, true
		}
	}
	return Rule{}, false
}

func fileRuleMatches(r Rule, ruleID string, cat model.Category, sev model.Severity, path string) bool {
	if strings.TrimSpace(r.RuleID) == "*" {
		return false
	}
	if r.RuleID == "" && r.Category == "" && r.Severity == "" && r.Files == "" {
		return false
	}
	if r.RuleID != "" && !matchGlob(r.RuleID, ruleID) {
		return false
	}
	if r.Category != "" && !strings.EqualFold(strings.TrimSpace(r.Category), string(cat)) {
		return false
	}
	if r.Severity != "" && !strings.EqualFold(strings.TrimSpace(r.Severity), string(sev)) {
		return false
	}
	if r.Files != "" && !matchGlob(r.Files, filepath.ToSlash(path)) {
		return false
	}
	return true
}

// matchGlob is case-insensitive filepath.Match with ** spanning segments.
func matchGlob(pattern, value string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	value = strings.ToLower(strings.TrimSpace(value))
	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, value)
	}
	matched, _ := filepath.Match(pattern, value)
	return matched
}

func matchDoublestar(pattern, value string) bool {
	parts := strings.SplitN(pattern, "**", 2)
	prefix := parts[0]
	suffix := strings.TrimPrefix(parts[1], "/")

	if !strings.HasPrefix(value, prefix) {
		return false
	}
	value = value[len(prefix):]
	if suffix == "" {
		return true
	}
	for i := 0; i <= len(value); i++ {
		if i > 0 && value[i-1] != '/' {
			continue
		}
		if matchGlob(suffix, value[i:]) {
			return true
		}
	}
	return false
}

func normalizeRuleID(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, ch := range raw {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			b.WriteRune(ch)
		case ch == ' ':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-_")
}

func generateRuleID(rule Rule) string {
	parts := []string{
		strings.TrimSpace(rule.RuleID),
		strings.TrimSpace(rule.Category),
		strings.TrimSpace(rule.Files),
		strings.TrimSpace(rule.Severity),
		strings.TrimSpace(rule.Reason),
		strings.TrimSpace(rule.Author),
		strings.TrimSpace(rule.Expires),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "sup-" + hex.EncodeToString(sum[:6])
}
