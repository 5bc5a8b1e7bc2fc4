package source

import (
	"testing"
)

func firstConditional(t *testing.T, path, src string) Conditional {
	t.Helper()
	u := normalize(t, path, src)
	if len(u.Conditionals) == 0 {
		t.Fatalf("no conditionals in %q", src)
	}
	return u.Conditionals[0]
}

func TestLogicInversionShape(t *testing.T) {
	want := "and(not(compare(user.active == true)), compare(user.role == admin))"
	tests := []struct {
		name string
		path string
		src  string
	}{
		{
			name: "javascript single statement",
			path: "auth.js",
			src:  "function check(user) {\n  if (!user.active && user.role === \"admin\") return true;\n  return false;\n}\n",
		},
		{
			name: "javascript explicit false",
			path: "auth.ts",
			src:  "if (user.active === false && \"admin\" == user.role) {\n  return true;\n}\n",
		},
		{
			name: "python block",
			path: "auth.py",
			src:  "def check(user):\n    if not user.active and user.role == \"admin\":\n        return True\n    return False\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := firstConditional(t, tc.path, tc.src)
			if got := c.Expr.String(); got != want {
				t.Fatalf("shape = %s\nwant    %s", got, want)
			}
			if !c.ReturnsTruthy {
				t.Fatal("body returns true")
			}
		})
	}
}

func TestCanonicalShapes(t *testing.T) {
	tests := []struct {
		cond string
		want string
	}{
		{"x === false", "not(compare(x == true))"},
		{"false == x", "not(compare(x == true))"},
		{"x !== true", "not(compare(x == true))"},
		{"x != false", "compare(x == true)"},
		{"!!ok", "compare(ok == true)"},
		{"a && (b && c)", "and(compare(a == true), compare(b == true), compare(c == true))"},
		{"a || b && c", "or(compare(a == true), and(compare(b == true), compare(c == true)))"},
		{"10 < count", "compare(count > 10)"},
		{"isAdmin(user)", "isAdmin()"},
		{"!req.session.user", "not(compare(req.session.user == true))"},
		{"user.role == 'admin' || user.isAdmin", "or(compare(user.role == admin), compare(user.isAdmin == true))"},
		{"(a + b) * c > 3", "compare((a + b) * c > 3)"},
		{"token == null", "compare(token == null)"},
	}
	for _, tc := range tests {
		t.Run(tc.cond, func(t *testing.T) {
			c := firstConditional(t, "c.js", "if ("+tc.cond+") {}\n")
			if got := c.Expr.String(); got != tc.want {
				t.Fatalf("shape(%s) = %s, want %s", tc.cond, got, tc.want)
			}
		})
	}
}

func TestPythonIsNot(t *testing.T) {
	c := firstConditional(t, "a.py", "if x is not None:\n    pass\n")
	if got := c.Expr.String(); got != "compare(x != null)" {
		t.Fatalf("shape = %s", got)
	}
	c = firstConditional(t, "a.py", "if role not in allowed:\n    pass\n")
	if got := c.Expr.String(); got != "compare(role not in allowed)" {
		t.Fatalf("shape = %s", got)
	}
}

func TestGoConditionWithInit(t *testing.T) {
	c := firstConditional(t, "a.go", "func f() {\n\tif err := run(); err != nil {\n\t\tpanic(err)\n\t}\n}\n")
	if got := c.Expr.String(); got != "compare(err != null)" {
		t.Fatalf("shape = %s", got)
	}
	if len(c.BodyCallees) != 1 || c.BodyCallees[0] != "panic" {
		t.Fatalf("body callees = %v", c.BodyCallees)
	}
	if c.ReturnsTruthy {
		t.Fatal("body does not return true")
	}
}

func TestBodyCallees(t *testing.T) {
	c := firstConditional(t, "mw.js", "if (req.user.role === 'admin' || req.query.debug) {\n  next();\n}\nlog();\n")
	if len(c.BodyCallees) != 1 || c.BodyCallees[0] != "next" {
		t.Fatalf("body callees = %v, want [next]", c.BodyCallees)
	}
}

func TestConditionalSpans(t *testing.T) {
	src := "if (a) {\n  go();\n}\n"
	u := normalize(t, "a.js", src)
	c := u.Conditionals[0]
	if u.Slice(c.CondSpan) != "a" {
		t.Fatalf("cond span = %q", u.Slice(c.CondSpan))
	}
	if u.Slice(c.Span) != src[:len(src)-1] {
		t.Fatalf("span = %q", u.Slice(c.Span))
	}
	if c.Line != 1 || c.Keyword != "if" {
		t.Fatalf("line/keyword = %d/%s", c.Line, c.Keyword)
	}
}

func TestTernaryAndComprehensionAreNotConditionals(t *testing.T) {
	u := normalize(t, "a.py", "xs = [x for x in items if x]\n")
	if len(u.Conditionals) != 0 {
		t.Fatalf("comprehension filter reported as conditional: %+v", u.Conditionals)
	}
	u = normalize(t, "a.js", "const v = ok ? 1 : 2;\n")
	if len(u.Conditionals) != 0 {
		t.Fatalf("ternary reported as conditional")
	}
}
