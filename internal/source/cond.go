package source

import (
	"guardian/internal/model"
)

// Conditional is an if/elif/while header with its parsed condition and a
// summary of the guarded body.
type Conditional struct {
	Keyword  string
	Span     model.Span
	CondSpan model.Span
	Expr     *Expr
	BodySpan model.Span
	// ReturnsTruthy is set when the body returns true, True or 1.
	ReturnsTruthy bool
	// BodyCallees lists the callees of calls made in the body, in order.
	BodyCallees []string
	Stmt        int
	Line        int
}

func (u *Unit) extractConditionals() []Conditional {
	var out []Conditional
	for i, t := range u.Tokens {
		if t.Kind != TokIdent {
			continue
		}
		switch t.Text {
		case "if", "elif", "while":
		default:
			continue
		}
		if i > 0 && isDot(u.Tokens[i-1]) {
			continue
		}
		if u.Language.Family == FamilyPython && !t.LineStart {
			continue
		}
		if c, ok := u.conditionalAt(i); ok {
			out = append(out, c)
		}
	}
	return out
}

func (u *Unit) conditionalAt(i int) (Conditional, bool) {
	condStart, condEnd, bodyStart := u.conditionBounds(i)
	if condStart >= condEnd {
		return Conditional{}, false
	}
	kw := u.Tokens[i]
	c := Conditional{
		Keyword:  kw.Text,
		CondSpan: model.Span{Start: u.Tokens[condStart].Span.Start, End: u.Tokens[condEnd-1].Span.End},
		Expr:     u.parseCondition(condStart, condEnd),
		Stmt:     kw.Stmt,
		Line:     kw.Line,
	}
	if c.Expr == nil {
		return Conditional{}, false
	}
	end := condEnd - 1
	if bodyStart >= 0 {
		bodyEnd := u.bodyEnd(i, bodyStart)
		c.BodySpan = model.Span{Start: u.Tokens[bodyStart].Span.Start, End: u.Tokens[bodyEnd].Span.End}
		c.ReturnsTruthy = u.returnsTruthy(bodyStart, bodyEnd)
		for _, call := range u.Calls {
			if call.Span.Start >= c.BodySpan.Start && call.Span.End <= c.BodySpan.End {
				c.BodyCallees = append(c.BodyCallees, call.Callee)
			}
		}
		end = bodyEnd
	}
	c.Span = model.Span{Start: kw.Span.Start, End: u.Tokens[end].Span.End}
	return c, true
}

// conditionBounds returns the token range of the condition and the first
// body token, or -1 when the header has no body.
func (u *Unit) conditionBounds(i int) (int, int, int) {
	n := len(u.Tokens)
	if i+1 >= n {
		return 0, 0, -1
	}
	next := u.Tokens[i+1]
	if u.Language.Family == FamilyPython {
		j := i + 1
		for j < n && !u.Tokens[j].Is(":") {
			if u.Tokens[j].isOpener() && u.Tokens[j].Partner > j {
				j = u.Tokens[j].Partner + 1
				continue
			}
			j++
		}
		if j >= n {
			return i + 1, j, -1
		}
		return i + 1, j, bodyOrNone(j+1, n)
	}

	if next.Is("(") && next.Partner > i+1 && u.Language.Name != LangGo {
		return i + 2, next.Partner, bodyOrNone(next.Partner+1, n)
	}
	// Go and rule files: the condition runs to the block or the statement end.
	start := i + 1
	j := start
	for j < n {
		t := u.Tokens[j]
		if t.Is("{") || (t.Is(";") && u.Language.Name != LangGo) {
			break
		}
		if t.Is(";") {
			start = j + 1
		}
		if t.isOpener() && t.Partner > j {
			j = t.Partner + 1
			continue
		}
		if t.isCloser() {
			break
		}
		j++
	}
	if j < n && u.Tokens[j].Is("{") {
		return start, j, j
	}
	return start, j, -1
}

func bodyOrNone(j, n int) int {
	if j >= n {
		return -1
	}
	return j
}

// bodyEnd returns the last token of the body starting at token start.
func (u *Unit) bodyEnd(kw, start int) int {
	t := u.Tokens[start]
	if t.Is("{") && t.Partner > start {
		return t.Partner
	}
	if u.Language.Family == FamilyPython && t.LineStart {
		return u.blockEnd(kw, u.indentOf(kw))
	}
	// single statement body
	stmt := t.Stmt
	last := start
	for j := start; j < len(u.Tokens) && u.Tokens[j].Stmt == stmt; j++ {
		last = j
		if u.Tokens[j].Is(";") {
			break
		}
	}
	return last
}

func (u *Unit) returnsTruthy(a, b int) bool {
	for j := a; j < b; j++ {
		t := u.Tokens[j]
		if t.Kind != TokIdent || t.Text != "return" {
			continue
		}
		switch u.Tokens[j+1].Text {
		case "true", "True", "1":
			return true
		}
	}
	return false
}
