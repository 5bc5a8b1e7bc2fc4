package scan

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"guardian/internal/model"
)

var (
	annotationLine = regexp.MustCompile(`^\s*(?://|#)\s*([A-Z][A-Z0-9]*(?:-[A-Z0-9]+){1,3}):`)
	secureLine     = regexp.MustCompile(`^\s*(?://|#)\s*SECURE version`)
	sectionLine    = regexp.MustCompile(`^\s*(?://|#)\s*====`)
)

// sampleBlock is the run of lines under one annotation comment, up to the
// next annotation, secure marker or section rule.
type sampleBlock struct {
	file   string
	rule   string
	secure bool
	start  int
	end    int
}

func sampleBlocks(t *testing.T, path string) []sampleBlock {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var blocks []sampleBlock
	closeOpen := func(line int) {
		if n := len(blocks); n > 0 && blocks[n-1].end == 0 {
			blocks[n-1].end = line - 1
		}
	}
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		switch {
		case secureLine.MatchString(text):
			closeOpen(line)
			blocks = append(blocks, sampleBlock{file: filepath.Base(path), secure: true, start: line})
		case annotationLine.MatchString(text):
			closeOpen(line)
			rule := annotationLine.FindStringSubmatch(text)[1]
			blocks = append(blocks, sampleBlock{file: filepath.Base(path), rule: rule, start: line})
		case sectionLine.MatchString(text):
			closeOpen(line)
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	closeOpen(line + 1)
	return blocks
}

// Annotations whose fixture value is deliberately not a live credential.
var unmatchedAnnotations = map[string]string{
	"python-vulnerabilities.py:133": "sk_live_ value belongs to the provider rule",
	"exposed-secrets.js:75":         "webhook host is example.com",
	"exposed-secrets.js:78":         "key body is not a Twilio key",
}

func TestScan_SampleAnnotations(t *testing.T) {
	res, err := Run(context.Background(), builtinRegistry(t), sampleInputs(t), Options{Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	byFile := map[string][]model.Finding{}
	for _, f := range res.Findings {
		name := filepath.Base(f.Path)
		byFile[name] = append(byFile[name], f)
	}
	within := func(b sampleBlock, rule string) []model.Finding {
		var out []model.Finding
		for _, f := range byFile[b.file] {
			if f.Line >= b.start && f.Line <= b.end && (rule == "" || f.RuleID == rule) {
				out = append(out, f)
			}
		}
		return out
	}

	var annotated, secure int
	for _, in := range sampleInputs(t) {
		for _, b := range sampleBlocks(t, in.Path) {
			key := b.file + ":" + strconv.Itoa(b.start)
			if b.secure {
				secure++
				if got := within(b, ""); len(got) != 0 {
					t.Errorf("%s secure block (lines %d-%d) flagged: %s", b.file, b.start, b.end, describe(got))
				}
				continue
			}
			annotated++
			if _, skip := unmatchedAnnotations[key]; skip {
				continue
			}
			if len(within(b, b.rule)) == 0 {
				t.Errorf("%s %s (lines %d-%d): no finding; block has %s", key, b.rule, b.start, b.end, describe(within(b, "")))
			}
		}
	}
	if annotated < 80 || secure < 8 {
		t.Fatalf("parsed %d annotations and %d secure blocks; samples changed?", annotated, secure)
	}
}

func TestScan_PickleDumpIsDemoted(t *testing.T) {
	res := scanText(t, "store.py", "import pickle\npickle.dump(data, f)\nobj = pickle.loads(blob)\n")
	got := findingsFor(res, "VC-003")
	if len(got) != 2 {
		t.Fatalf("VC-003 findings = %+v", res.Findings)
	}
	if got[0].Line != 2 || got[0].Demotions != 1 || got[0].Severity != model.SeverityMedium {
		t.Fatalf("dump finding = %+v, want demoted to medium", got[0])
	}
	if got[1].Line != 3 || got[1].Demotions != 0 || got[1].Severity != model.SeverityHigh {
		t.Fatalf("loads finding = %+v", got[1])
	}
}

func TestScan_DebugFlag(t *testing.T) {
	tests := []struct {
		name string
		path string
		src  string
		want int
	}{
		{"python constant", "settings.py", "DEBUG = True\n", 1},
		{"flask attribute", "app.py", "app.debug = True\n", 1},
		{"js config", "server.js", "const opts = { debug: true };\n", 1},
		{"switched off", "settings.py", "DEBUG = False\n", 0},
		{"from environment", "settings.py", "DEBUG = os.getenv('DEBUG') == '1'\n", 0},
		{"unrelated name", "settings.py", "DEBUGGER_PORT = True\n", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := scanText(t, tc.path, tc.src)
			if got := findingsFor(res, "SM-001"); len(got) != tc.want {
				t.Fatalf("SM-001 findings = %d, want %d: %+v", len(got), tc.want, res.Findings)
			}
		})
	}
}

func TestScan_PlaintextPasswordAssignment(t *testing.T) {
	res := scanText(t, "db.js", "const adminPassword = \"SuperSecret123!\";\nconst pw = hash(input);\n")
	got := findingsFor(res, "CF-005")
	if len(got) != 1 || got[0].Line != 1 || got[0].Category != model.CategoryCryptoFailure {
		t.Fatalf("CF-005 findings = %+v", res.Findings)
	}
	if len(findingsFor(res, "SEC-004")) != 1 {
		t.Fatalf("SEC-004 should still report the same line: %+v", res.Findings)
	}
}

func describe(fs []model.Finding) string {
	if len(fs) == 0 {
		return "nothing"
	}
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		parts = append(parts, f.RuleID+"@"+strconv.Itoa(f.Line))
	}
	return strings.Join(parts, ", ")
}
