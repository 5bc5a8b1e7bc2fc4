package source

import (
	"strings"
	"testing"
)

func normalize(t *testing.T, path, src string) *Unit {
	t.Helper()
	u := Normalize(path, []byte(src), "")
	if u.Degraded {
		t.Fatalf("Normalize(%s) degraded: %s", path, u.DegradedReason)
	}
	return u
}

func findCall(t *testing.T, u *Unit, callee string) CallSite {
	t.Helper()
	for _, c := range u.Calls {
		if c.Callee == callee {
			return c
		}
	}
	var got []string
	for _, c := range u.Calls {
		got = append(got, c.Callee)
	}
	t.Fatalf("no call %q; calls = %v", callee, got)
	return CallSite{}
}

func findAssignment(t *testing.T, u *Unit, target string) Assignment {
	t.Helper()
	for _, a := range u.Assignments {
		if a.Target == target {
			return a
		}
	}
	t.Fatalf("no assignment to %q in %d assignments", target, len(u.Assignments))
	return Assignment{}
}

// ── Language detection ──────────────────────────────────────────────

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		hint string
		want string
	}{
		{"src/app.tsx", "", LangTypeScript},
		{"lib/db.js", "", LangJavaScript},
		{"handler.py", "", LangPython},
		{"main.go", "", LangGo},
		{".env.local", "", LangEnv},
		{"config/.env", "", LangEnv},
		{"firestore.rules", "", LangFirebaseRules},
		{"schema.sql", "", LangSQL},
		{"README", "", LangText},
		{"script", "python", LangPython},
		{"app.js", "not-a-language", LangJavaScript},
	}
	for _, tc := range tests {
		if got := DetectLanguage(tc.path, tc.hint).Name; got != tc.want {
			t.Errorf("DetectLanguage(%q, %q) = %q, want %q", tc.path, tc.hint, got, tc.want)
		}
	}
}

// ── Positions and comments ──────────────────────────────────────────

func TestPositionCountsRunes(t *testing.T) {
	u := Normalize("x.txt", []byte("a\nbé c"), "")
	line, col := u.Position(6)
	if line != 2 || col != 4 {
		t.Fatalf("Position(6) = %d:%d, want 2:4", line, col)
	}
	if got := u.LineText(2); got != "bé c" {
		t.Fatalf("LineText(2) = %q", got)
	}
	if u.LineCount() != 2 {
		t.Fatalf("LineCount = %d, want 2", u.LineCount())
	}
}

func TestCommentsAreNotCode(t *testing.T) {
	u := normalize(t, "a.js", "// crypto.createHash('md5')\nconst x = 1;\n")
	if !u.InComment(5) {
		t.Fatal("offset 5 should be inside the line comment")
	}
	if u.InComment(30) {
		t.Fatal("offset 30 should be code")
	}
	if len(u.Calls) != 0 {
		t.Fatalf("calls inside comments must be ignored, got %+v", u.Calls)
	}
}

func TestHashCommentNeedsLeadingSpace(t *testing.T) {
	u := normalize(t, "run.sh", "URL=http://host/a#frag # trailing\n")
	if len(u.Comments) != 1 {
		t.Fatalf("comments = %d, want 1", len(u.Comments))
	}
	if got := u.Slice(u.Comments[0]); got != "# trailing" {
		t.Fatalf("comment = %q", got)
	}
}

// ── Calls ───────────────────────────────────────────────────────────

func TestCallSites(t *testing.T) {
	src := "const hash = crypto.createHash('md5');\n" +
		"const rows = await db.query(\"SELECT * FROM t WHERE id = \" + id);\n" +
		"await db.query(`SELECT * FROM t WHERE id = ${id}`);\n" +
		"supabase.from('users').delete().eq('id', id);\n"
	u := normalize(t, "a.js", src)

	c := findCall(t, u, "crypto.createHash")
	if len(c.Args) != 1 || c.Args[0].Kind != KindString || c.Args[0].Value != "md5" {
		t.Fatalf("createHash args = %+v", c.Args)
	}
	if c.Line != 1 || u.Slice(c.Span) != "crypto.createHash('md5')" {
		t.Fatalf("createHash span = %q line %d", u.Slice(c.Span), c.Line)
	}

	var kinds []ArgKind
	for _, call := range u.Calls {
		if call.Callee == "db.query" {
			kinds = append(kinds, call.Args[0].Kind)
		}
	}
	if len(kinds) != 2 || kinds[0] != KindConcat || kinds[1] != KindInterpolated {
		t.Fatalf("db.query arg kinds = %v, want [concat interpolated]", kinds)
	}

	findCall(t, u, "supabase.from")
	findCall(t, u, "supabase.from().delete")
	eq := findCall(t, u, "supabase.from().delete().eq")
	if len(eq.Args) != 2 || eq.Args[1].Kind != KindIdentifier {
		t.Fatalf("eq args = %+v", eq.Args)
	}
}

func TestPythonCallsAndKeywordArgs(t *testing.T) {
	src := "def run(cmd):\n" +
		"    subprocess.run(cmd, shell=True)\n" +
		"    cursor.execute(f\"SELECT * FROM users WHERE id = {uid}\")\n" +
		"    cursor.execute(\"SELECT * FROM users WHERE id = %s\" % uid)\n"
	u := normalize(t, "a.py", src)

	for _, c := range u.Calls {
		if c.Callee == "run" {
			t.Fatal("def run( must not be reported as a call")
		}
	}
	sub := findCall(t, u, "subprocess.run")
	if len(sub.Args) != 2 || sub.Args[1].Name != "shell" || sub.Args[1].Kind != KindLiteral {
		t.Fatalf("subprocess.run args = %+v", sub.Args)
	}

	var kinds []ArgKind
	for _, c := range u.Calls {
		if c.Callee == "cursor.execute" {
			kinds = append(kinds, c.Args[0].Kind)
		}
	}
	if len(kinds) != 2 || kinds[0] != KindInterpolated || kinds[1] != KindFormat {
		t.Fatalf("execute arg kinds = %v, want [interpolated format]", kinds)
	}
}

// ── Assignments ─────────────────────────────────────────────────────

func TestAssignments(t *testing.T) {
	src := "password = \"hunter2\"\n" +
		"token = get_token()\n"
	u := normalize(t, "a.py", src)

	pw := findAssignment(t, u, "password")
	if pw.ValueKind != KindString || pw.Literal != "hunter2" || pw.Line != 1 {
		t.Fatalf("password assignment = %+v", pw)
	}
	if tok := findAssignment(t, u, "token"); tok.ValueKind != KindCall {
		t.Fatalf("token kind = %s, want call", tok.ValueKind)
	}
}

func TestObjectEntries(t *testing.T) {
	src := "const config = {\n" +
		"  apiKey: \"AIzaSyA-example\",\n" +
		"  authDomain: \"demo.firebaseapp.com\",\n" +
		"};\n"
	u := normalize(t, "firebase.js", src)

	if cfg := findAssignment(t, u, "config"); cfg.ValueKind != KindObject {
		t.Fatalf("config kind = %s, want object", cfg.ValueKind)
	}
	key := findAssignment(t, u, "apiKey")
	if key.ValueKind != KindString || key.Literal != "AIzaSyA-example" || key.Line != 2 {
		t.Fatalf("apiKey entry = %+v", key)
	}
	findAssignment(t, u, "authDomain")
}

func TestCallArgumentsAreNotAssignments(t *testing.T) {
	u := normalize(t, "a.py", "connect(host=\"db\", password=secret)\n")
	for _, a := range u.Assignments {
		t.Errorf("unexpected assignment %+v", a)
	}
}

// ── Scopes ──────────────────────────────────────────────────────────

func TestScopes(t *testing.T) {
	src := "function a() {\n  x();\n}\n" +
		"const b = async (req) => {\n  if (ok) { y(); }\n};\n"
	u := normalize(t, "a.js", src)
	if len(u.Scopes) != 2 {
		t.Fatalf("scopes = %d, want 2 (if blocks are not scopes)", len(u.Scopes))
	}
	y := findCall(t, u, "y")
	scope := u.ScopeAt(y.Span.Start)
	if !strings.HasPrefix(u.Slice(scope), "{\n  if (ok)") {
		t.Fatalf("scope of y() = %q", u.Slice(scope))
	}
	if whole := u.ScopeAt(0); whole.Start != 0 || whole.End != len(src) {
		t.Fatalf("ScopeAt(0) = %+v, want whole file", whole)
	}
}

func TestPythonScopes(t *testing.T) {
	src := "def a():\n    x()\n\ndef b():\n    y()\n"
	u := normalize(t, "a.py", src)
	if len(u.Scopes) != 2 {
		t.Fatalf("scopes = %d, want 2", len(u.Scopes))
	}
	if got := u.Slice(u.Scopes[0]); got != "def a():\n    x()" {
		t.Fatalf("first scope = %q", got)
	}
}

// ── Degradation ─────────────────────────────────────────────────────

func TestDegradedInput(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content []byte
		binary  bool
	}{
		{name: "unterminated string", path: "a.js", content: []byte("const s = \"open\nconst t = 1;\n")},
		{name: "unbalanced brace", path: "a.go", content: []byte("func main() {\n")},
		{name: "unterminated template", path: "a.ts", content: []byte("const q = `SELECT ${id")},
		{name: "binary", path: "a.bin", content: []byte("MZ\x00\x01\x02"), binary: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := Normalize(tc.path, tc.content, "")
			if !u.Degraded || u.DegradedReason == "" {
				t.Fatalf("expected degraded unit, got %+v", u)
			}
			if u.Binary != tc.binary {
				t.Fatalf("Binary = %v, want %v", u.Binary, tc.binary)
			}
			if len(u.Calls) != 0 || len(u.Conditionals) != 0 || len(u.Assignments) != 0 {
				t.Fatal("degraded units must not expose structural views")
			}
		})
	}
}

func TestUnbalancedYAMLIsNotDegraded(t *testing.T) {
	u := Normalize("c.yaml", []byte("key: value)\nother: [1, 2\n"), "")
	if u.Degraded {
		t.Fatalf("yaml should not be degraded: %s", u.DegradedReason)
	}
}
