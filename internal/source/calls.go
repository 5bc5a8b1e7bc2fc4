package source

import (
	"strings"

	"guardian/internal/model"
)

// ArgKind classifies an argument or assigned value by its lexical shape.
type ArgKind string

const (
	KindString       ArgKind = "string"
	KindInterpolated ArgKind = "interpolated"
	KindConcat       ArgKind = "concat"
	KindFormat       ArgKind = "format"
	KindIdentifier   ArgKind = "identifier"
	KindNumber       ArgKind = "number"
	KindLiteral      ArgKind = "literal"
	KindArray        ArgKind = "array"
	KindObject       ArgKind = "object"
	KindTuple        ArgKind = "tuple"
	KindCall         ArgKind = "call"
	KindFunction     ArgKind = "function"
	KindExpression   ArgKind = "expression"
)

// KnownKinds lists every kind a rule may name.
var KnownKinds = []ArgKind{
	KindString, KindInterpolated, KindConcat, KindFormat, KindIdentifier, KindNumber,
	KindLiteral, KindArray, KindObject, KindTuple, KindCall, KindFunction, KindExpression,
}

// Dynamic reports whether the value is built from non-literal data.
func (k ArgKind) Dynamic() bool {
	switch k {
	case KindInterpolated, KindConcat, KindFormat, KindIdentifier, KindCall, KindExpression:
		return true
	default:
		return false
	}
}

type Arg struct {
	Span model.Span
	Text string
	Kind ArgKind
	// Name is set for keyword arguments such as shell=True.
	Name string
	// Value is the unquoted content when Kind is KindString.
	Value string
}

// CallSite is a call expression. Callee is the member path leading to the
// call with inner call groups collapsed, e.g. supabase.from().select.
type CallSite struct {
	Callee     string
	Name       string
	New        bool
	Span       model.Span
	CalleeSpan model.Span
	Args       []Arg
	Stmt       int
	Line       int
}

var keywords = map[string]bool{
	"if": true, "else": true, "elif": true, "for": true, "while": true, "do": true,
	"switch": true, "case": true, "catch": true, "return": true, "function": true,
	"typeof": true, "instanceof": true, "new": true, "delete": true, "void": true,
	"throw": true, "in": true, "of": true, "await": true, "yield": true, "async": true,
	"def": true, "class": true, "lambda": true, "not": true, "and": true, "or": true,
	"is": true, "with": true, "assert": true, "func": true, "go": true, "defer": true,
	"var": true, "let": true, "const": true, "except": true, "raise": true, "import": true,
}

var declarationKeywords = map[string]bool{
	"function": true, "def": true, "class": true, "func": true, "fn": true,
}

var literalWords = map[string]bool{
	"true": true, "false": true, "True": true, "False": true, "null": true,
	"None": true, "nil": true, "undefined": true,
}

func isPathIdent(t Token) bool {
	return t.Kind == TokIdent && !keywords[t.Text]
}

// pathIdentAt accepts keywords used as property names, as in
// query.delete().
func (u *Unit) pathIdentAt(i int) bool {
	t := u.Tokens[i]
	if t.Kind != TokIdent {
		return false
	}
	return !keywords[t.Text] || (i > 0 && isDot(u.Tokens[i-1]))
}

func isDot(t Token) bool {
	return t.Is(".") || t.Is("?.")
}

// pathBefore walks backward from token end over a member path such as
// a.b('x').c[0] and returns the index of its first token and its text with
// groups collapsed to () and [].
func (u *Unit) pathBefore(end int) (int, string) {
	var parts []string
	start := end + 1
	i := end
	for i >= 0 {
		t := u.Tokens[i]
		if t.isCloser() && t.Partner >= 0 && !t.Is("}") {
			if t.Is(")") {
				parts = append(parts, "()")
			} else {
				parts = append(parts, "[]")
			}
			start = t.Partner
			i = t.Partner - 1
			if i >= 0 && (u.pathIdentAt(i) || (u.Tokens[i].isCloser() && !u.Tokens[i].Is("}"))) {
				continue
			}
			break
		}
		switch {
		case u.pathIdentAt(i):
			parts = append(parts, t.Text)
		case t.Kind == TokString:
			parts = append(parts, `""`)
		default:
			i = -1
			continue
		}
		start = i
		i--
		if i >= 0 && isDot(u.Tokens[i]) {
			parts = append(parts, ".")
			i--
			continue
		}
		break
	}
	for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
		parts[l], parts[r] = parts[r], parts[l]
	}
	return start, strings.TrimPrefix(strings.Join(parts, ""), ".")
}

func (u *Unit) extractCalls() []CallSite {
	var out []CallSite
	for k, t := range u.Tokens {
		if !t.Is("(") || k == 0 || t.Partner < 0 || !u.pathIdentAt(k-1) {
			continue
		}
		start, callee := u.pathBefore(k - 1)
		if start > k-1 || u.isDeclaration(start, k) {
			continue
		}
		closeIdx := t.Partner
		call := CallSite{
			Callee:     callee,
			Name:       u.Tokens[k-1].Text,
			Span:       model.Span{Start: u.Tokens[start].Span.Start, End: u.Tokens[closeIdx].Span.End},
			CalleeSpan: model.Span{Start: u.Tokens[start].Span.Start, End: u.Tokens[k-1].Span.End},
			Args:       u.splitArgs(k, closeIdx),
			Stmt:       u.Tokens[start].Stmt,
			Line:       u.Tokens[start].Line,
		}
		if start > 0 && u.Tokens[start-1].Text == "new" {
			call.New = true
		}
		out = append(out, call)
	}
	return out
}

// isDeclaration filters function and method definitions that look like
// calls: def f(, function f(, func (r T) f(, and method shorthand f(x) {.
func (u *Unit) isDeclaration(start, open int) bool {
	if start > 0 {
		prev := u.Tokens[start-1]
		if prev.Kind == TokIdent && declarationKeywords[prev.Text] {
			return true
		}
		if prev.Is(")") && prev.Partner > 0 && u.Tokens[prev.Partner-1].Text == "func" {
			return true
		}
	}
	closeIdx := u.Tokens[open].Partner
	if closeIdx+1 >= len(u.Tokens) || !u.Tokens[closeIdx+1].Is("{") || start != open-1 {
		return false
	}
	if u.Language.Name == LangGo {
		return false
	}
	if start == 0 {
		return true
	}
	switch u.Tokens[start-1].Text {
	case ";", "{", "}", "async", "static", "get", "set", "*", "public", "private", "protected":
		return true
	}
	return false
}

func (u *Unit) splitArgs(open, closeIdx int) []Arg {
	var args []Arg
	segStart := open + 1
	i := open + 1
	for i < closeIdx {
		t := u.Tokens[i]
		if t.isOpener() && t.Partner > i {
			i = t.Partner + 1
			continue
		}
		if t.Is(",") {
			if arg, ok := u.makeArg(segStart, i); ok {
				args = append(args, arg)
			}
			segStart = i + 1
		}
		i++
	}
	if arg, ok := u.makeArg(segStart, closeIdx); ok {
		args = append(args, arg)
	}
	return args
}

func (u *Unit) makeArg(a, b int) (Arg, bool) {
	if a >= b {
		return Arg{}, false
	}
	span := model.Span{Start: u.Tokens[a].Span.Start, End: u.Tokens[b-1].Span.End}
	arg := Arg{Span: span, Text: u.Slice(span)}
	if b-a >= 3 && u.Tokens[a].Kind == TokIdent && u.Tokens[a+1].Is("=") {
		arg.Name = u.Tokens[a].Text
		a += 2
	}
	arg.Kind, arg.Value = u.classify(a, b)
	return arg, true
}

// classify reports the kind of the expression in tokens [a, b) and, for
// plain string literals, its unquoted content.
func (u *Unit) classify(a, b int) (ArgKind, string) {
	for a < b && (u.Tokens[a].Text == "await" || u.Tokens[a].Text == "yield") && u.Tokens[a].Kind == TokIdent {
		a++
	}
	if a >= b {
		return KindExpression, ""
	}
	if u.scalarValues() {
		return u.classifyScalar(a, b)
	}
	first := u.Tokens[a]
	if b-a == 1 {
		switch first.Kind {
		case TokString:
			if first.Interpolated {
				return KindInterpolated, ""
			}
			return KindString, stringContent(first)
		case TokNumber:
			return KindNumber, ""
		case TokIdent:
			if literalWords[first.Text] {
				return KindLiteral, ""
			}
			if isPathIdent(first) {
				return KindIdentifier, ""
			}
		}
		return KindExpression, ""
	}
	if first.isOpener() && first.Partner == b-1 {
		switch first.Text {
		case "[":
			return KindArray, ""
		case "{":
			return KindObject, ""
		default:
			if u.hasTopLevel(a+1, b-1, ",") {
				return KindTuple, ""
			}
			return u.classify(a+1, b-1)
		}
	}
	if first.Text == "function" || first.Text == "lambda" || first.Text == "async" || u.hasTopLevel(a, b, "=>") {
		return KindFunction, ""
	}

	hasPlus, hasString, allLiteral := false, false, true
	for i := a; i < b; i++ {
		t := u.Tokens[i]
		if t.isOpener() && t.Partner > i && t.Partner < b {
			allLiteral = false
			i = t.Partner
			continue
		}
		switch {
		case t.Kind == TokString && t.Quote != '/':
			hasString = true
			if t.Interpolated {
				allLiteral = false
			}
			if i+1 < b && u.Tokens[i+1].Is("%") {
				return KindFormat, ""
			}
			if i+2 < b && u.Tokens[i+1].Is(".") && u.Tokens[i+2].Text == "format" {
				return KindFormat, ""
			}
		case t.Is("+"):
			hasPlus = true
		default:
			allLiteral = false
		}
	}
	if hasPlus && hasString {
		if allLiteral {
			return KindString, ""
		}
		return KindConcat, ""
	}
	if start, _ := u.pathBefore(b - 1); start == a {
		if u.Tokens[b-1].Is(")") {
			return KindCall, ""
		}
		return KindIdentifier, ""
	}
	if u.Tokens[a].Text == "new" {
		return KindCall, ""
	}
	return KindExpression, ""
}

// scalarValues reports languages whose unquoted values are data, such as
// KEY=value in .env files.
func (u *Unit) scalarValues() bool {
	return u.Language.Name == LangEnv || u.Language.Name == LangYAML
}

func (u *Unit) classifyScalar(a, b int) (ArgKind, string) {
	first := u.Tokens[a]
	if b-a == 1 {
		switch {
		case first.Kind == TokString:
			return KindString, stringContent(first)
		case first.Kind == TokNumber:
			return KindNumber, ""
		case literalWords[first.Text] || first.Text == "yes" || first.Text == "no":
			return KindLiteral, ""
		}
	}
	if first.isOpener() && first.Partner == b-1 {
		if first.Text == "[" {
			return KindArray, ""
		}
		return KindObject, ""
	}
	if strings.HasPrefix(first.Text, "$") {
		return KindIdentifier, ""
	}
	return KindString, u.Slice(model.Span{Start: first.Span.Start, End: u.Tokens[b-1].Span.End})
}

func (u *Unit) hasTopLevel(a, b int, text string) bool {
	for i := a; i < b; i++ {
		t := u.Tokens[i]
		if t.isOpener() && t.Partner > i && t.Partner < b {
			i = t.Partner
			continue
		}
		if t.Is(text) {
			return true
		}
	}
	return false
}
