package suppress

import (
	"strings"
	"testing"

	"guardian/internal/source"
)

func TestParseSuppressionComment(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantID  string
		wantMsg string
		wantOK  bool
	}{
		{
			name:   "line comment",
			line:   "// guardian:suppress SEC-004 -- test fixture",
			wantID: "SEC-004", wantMsg: "test fixture", wantOK: true,
		},
		{
			name:   "hash comment",
			line:   "# guardian:suppress aws-001 -- documented sample key",
			wantID: "AWS-001", wantMsg: "documented sample key", wantOK: true,
		},
		{
			name:   "html comment",
			line:   "<!-- guardian:suppress XSS-003 -- trusted template -->",
			wantID: "XSS-003", wantMsg: "trusted template", wantOK: true,
		},
		{
			name:   "block comment",
			line:   "/* guardian:suppress CF-001 -- checksum only */",
			wantID: "CF-001", wantMsg: "checksum only", wantOK: true,
		},
		{
			name:   "sql comment without reason",
			line:   "-- guardian:suppress SUP-SQL-001",
			wantID: "SUP-SQL-001", wantOK: true,
		},
		{
			name:   "glob id",
			line:   "// guardian:suppress SUP-CFG-* -- seed script",
			wantID: "SUP-CFG-*", wantMsg: "seed script", wantOK: true,
		},
		{
			name:   "trailing words after id",
			line:   "// guardian:suppress CF-001 legacy",
			wantID: "CF-001", wantOK: true,
		},
		{
			name: "not a comment",
			line: "const marker = 'guardian:suppress CF-001'",
		},
		{
			name: "plain comment",
			line: "// nothing to see",
		},
		{
			name: "empty marker",
			line: "// guardian:suppress",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, msg, ok, _ := parseSuppressionComment(tc.line)
			if ok != tc.wantOK {
				t.Errorf("parseSuppressionComment(%q) ok=%v, want %v", tc.line, ok, tc.wantOK)
			}
			if id != tc.wantID {
				t.Errorf("parseSuppressionComment(%q) id=%q, want %q", tc.line, id, tc.wantID)
			}
			if msg != tc.wantMsg {
				t.Errorf("parseSuppressionComment(%q) msg=%q, want %q", tc.line, msg, tc.wantMsg)
			}
		})
	}
}

func TestParseSuppressionCommentRejectsWildcard(t *testing.T) {
	_, _, ok, warn := parseSuppressionComment("// guardian:suppress * -- everything")
	if ok {
		t.Fatal("wildcard suppression must be rejected")
	}
	if !strings.Contains(warn, "wildcard") {
		t.Fatalf("warning = %q", warn)
	}
}

func TestScanInline(t *testing.T) {
	src := "// guardian:suppress CF-001 -- checksum for cache keys\n" +
		"const h = crypto.createHash('md5');\n" +
		"const pw = \"hunter22\"; // guardian:suppress SEC-004\n" +
		"/*\n" +
		" * guardian:suppress AWS-001 -- docs\n" +
		" */\n" +
		"// guardian:suppress *\n"
	u := source.Normalize("a.js", []byte(src), "")
	found, warnings := ScanInline(u)

	want := []InlineSuppression{
		{RuleID: "CF-001", Reason: "checksum for cache keys", Line: 1},
		{RuleID: "SEC-004", Line: 3},
		{RuleID: "AWS-001", Reason: "docs", Line: 5},
	}
	if len(found) != len(want) {
		t.Fatalf("found %+v, want %+v", found, want)
	}
	for i := range want {
		if found[i] != want[i] {
			t.Errorf("suppression %d = %+v, want %+v", i, found[i], want[i])
		}
	}
	if len(warnings) != 1 || !strings.HasPrefix(warnings[0], "a.js:7:") {
		t.Fatalf("warnings = %q", warnings)
	}
}

func TestScanInlineWithoutMarker(t *testing.T) {
	u := source.Normalize("a.py", []byte("# nothing here\nx = 1\n"), "")
	found, warnings := ScanInline(u)
	if found != nil || warnings != nil {
		t.Fatalf("found=%v warnings=%v", found, warnings)
	}
}

func TestMatchInlineCoversSameAndNextLine(t *testing.T) {
	inline := []InlineSuppression{{RuleID: "SEC-*", Line: 10}}
	tests := []struct {
		line int
		want bool
	}{
		{9, false},
		{10, true},
		{11, true},
		{12, false},
	}
	for _, tc := range tests {
		reason, ok := matchInline(inline, "SEC-004", tc.line)
		if ok != tc.want {
			t.Errorf("matchInline(line %d) = %v, want %v", tc.line, ok, tc.want)
		}
		if ok && reason != "inline suppression" {
			t.Errorf("default reason = %q", reason)
		}
	}
	if _, ok := matchInline(inline, "CF-001", 10); ok {
		t.Error("glob SEC-* must not cover CF-001")
	}
}
