package suppress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"guardian/internal/model"
)

func writeSuppressions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suppressions.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ── Load / Save ─────────────────────────────────────────────────────

func TestLoadMissing(t *testing.T) {
	rules, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected nil error for missing file, got: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected no rules, got %d", len(rules))
	}
}

func TestLoadValidFile(t *testing.T) {
	path := writeSuppressions(t, `suppressions:
  - rule: "SEC-*"
    files: "tests/**"
    reason: "Test fixtures"
    author: "dev@example.com"
    expires: "2099-01-01"
  - category: baas_misconfig
    severity: low
    reason: "Accepted risk"
`)
	rules, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].RuleID != "SEC-*" || rules[0].Files != "tests/**" {
		t.Errorf("first rule = %+v", rules[0])
	}
	for _, r := range rules {
		if !strings.HasPrefix(r.ID, "sup-") {
			t.Errorf("generated id = %q", r.ID)
		}
	}
}

func TestLoadNormalizesCategoryAndSeverity(t *testing.T) {
	rules, err := Load(writeSuppressions(t, "suppressions:\n  - category: CryptoFailure\n    severity: HIGH\n    reason: vendored\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rules[0].Category != "crypto_failure" || rules[0].Severity != "high" {
		t.Fatalf("rule = %+v", rules[0])
	}
	if !fileRuleMatches(rules[0], "CF-001", model.CategoryCryptoFailure, model.SeverityHigh, "a.js") {
		t.Fatal("normalized rule should match")
	}
}

func TestLoadRejectsBadRules(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing reason", "suppressions:\n  - rule: CF-001\n", "reason is required"},
		{"bad severity", "suppressions:\n  - rule: CF-001\n    severity: urgent\n    reason: x\n", "suppression rule 1"},
		{"bad category", "suppressions:\n  - category: xss\n    reason: x\n", "suppression rule 1"},
		{"bad yaml", "suppressions: [\n", "parse suppressions"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeSuppressions(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestLoadEmptyFile(t *testing.T) {
	rules, err := Load(writeSuppressions(t, "  \n"))
	if err != nil || len(rules) != 0 {
		t.Fatalf("Load(empty) = %v, %v", rules, err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".guardian", "suppressions.yaml")
	in := []Rule{{RuleID: "CF-001", Files: "legacy/**", Reason: "checksums"}}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 || out[0].RuleID != "CF-001" || out[0].ID == "" {
		t.Fatalf("round trip = %+v", out)
	}
}

// ── Rule bookkeeping ────────────────────────────────────────────────

func TestRuleIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		expires string
		want    bool
	}{
		{"no expiry", "", false},
		{"future", "2099-01-01", false},
		{"past", "2020-01-01", true},
		{"invalid format", "next week", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := (Rule{Expires: tc.expires}).IsExpired(now); got != tc.want {
				t.Fatalf("IsExpired(%q) = %v, want %v", tc.expires, got, tc.want)
			}
		})
	}
	if !(Rule{Expires: "next week"}).HasInvalidExpiry() {
		t.Fatal("HasInvalidExpiry should flag unparseable dates")
	}
}

func TestEnsureRuleIDsFillsAndUniquifies(t *testing.T) {
	rules := EnsureRuleIDs([]Rule{
		{ID: "Legacy Hashes", Reason: "a"},
		{ID: "legacy-hashes", Reason: "b"},
		{Reason: "c"},
	})
	if rules[0].ID != "legacy-hashes" || rules[1].ID != "legacy-hashes-2" {
		t.Fatalf("ids = %q, %q", rules[0].ID, rules[1].ID)
	}
	if !strings.HasPrefix(rules[2].ID, "sup-") {
		t.Fatalf("generated id = %q", rules[2].ID)
	}
}

func TestRemoveMatching(t *testing.T) {
	rules := []Rule{
		{ID: "keep", RuleID: "CF-001", Reason: "a"},
		{ID: "drop-1", RuleID: "SEC-004", Reason: "b"},
		{ID: "drop-2", RuleID: "SEC-001", Reason: "c"},
	}
	kept, removed := RemoveMatching(rules, MatchOptions{RuleID: "SEC-*"})
	if len(kept) != 1 || kept[0].ID != "keep" || len(removed) != 2 {
		t.Fatalf("kept=%+v removed=%+v", kept, removed)
	}
	kept, removed = RemoveMatching(rules, MatchOptions{})
	if len(kept) != 3 || len(removed) != 0 {
		t.Fatal("empty options must match nothing")
	}
}

// ── Matching ────────────────────────────────────────────────────────

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"SEC-*", "sec-004", true},
		{"SEC-*", "CF-001", false},
		{"tests/**", "tests/unit/a.js", true},
		{"**/fixtures/*.js", "src/fixtures/a.js", true},
		{"**/fixtures/*.js", "fixtures/a.js", true},
		{"**/fixtures/*.js", "src/fixtures/deep/a.js", false},
		{"src/**/*.py", "src/a/b/c.py", true},
		{"*.env", "config/.env", false},
	}
	for _, tc := range tests {
		if got := matchGlob(tc.pattern, tc.value); got != tc.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tc.pattern, tc.value, got, tc.want)
		}
	}
}

func TestFileRuleMatches(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"rule glob and files", Rule{RuleID: "CF-*", Files: "legacy/**"}, true},
		{"wrong files", Rule{RuleID: "CF-*", Files: "src/**"}, false},
		{"category", Rule{Category: "CRYPTO_FAILURE"}, true},
		{"severity", Rule{Severity: "high"}, true},
		{"severity mismatch", Rule{Severity: "low"}, false},
		{"empty rule", Rule{Reason: "x"}, false},
		{"wildcard rule id", Rule{RuleID: "*"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := fileRuleMatches(tc.rule, "CF-001", model.CategoryCryptoFailure, model.SeverityHigh, "legacy/hash.js")
			if got != tc.want {
				t.Fatalf("fileRuleMatches(%+v) = %v, want %v", tc.rule, got, tc.want)
			}
		})
	}
}

func TestMatchFileRulesSkipsExpired(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	rules := []Rule{
		{ID: "old", RuleID: "CF-001", Reason: "expired", Expires: "2026-01-01"},
		{ID: "new", RuleID: "CF-001", Reason: "current", Expires: "2027-01-01"},
	}
	r, ok := matchFileRules(rules, now, "CF-001", model.CategoryCryptoFailure, model.SeverityHigh, "a.js")
	if !ok || r.ID != "new" {
		t.Fatalf("matchFileRules = %+v, %v", r, ok)
	}
	if _, ok := matchFileRules(rules[:1], now, "CF-001", model.CategoryCryptoFailure, model.SeverityHigh, "a.js"); ok {
		t.Fatal("expired rule must not suppress")
	}
}
