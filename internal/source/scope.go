package source

import (
	"sort"

	"guardian/internal/model"
)

var controlKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"with": true, "elif": true, "foreach": true, "using": true, "lock": true,
}

// extractScopes finds function bodies: brace blocks that follow an arrow,
// a function keyword in the same statement or a method signature, and
// indented Python def blocks.
func (u *Unit) extractScopes() []model.Span {
	var out []model.Span
	if u.Language.Family == FamilyPython {
		out = u.pythonScopes()
	} else {
		for i, t := range u.Tokens {
			if !t.Is("{") || t.Partner < i || i == 0 {
				continue
			}
			if u.opensFunction(i) {
				out = append(out, model.Span{Start: t.Span.Start, End: u.Tokens[t.Partner].Span.End})
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Start < out[b].Start })
	return out
}

func (u *Unit) opensFunction(brace int) bool {
	prev := u.Tokens[brace-1]
	if prev.Is("=>") {
		return true
	}
	stmt := u.Tokens[brace].Stmt
	depth := u.Tokens[brace].Depth
	for j := brace - 1; j >= 0 && u.Tokens[j].Stmt == stmt; j-- {
		t := u.Tokens[j]
		if t.Depth != depth {
			continue
		}
		if t.Kind == TokIdent && (t.Text == "function" || t.Text == "func" || t.Text == "fn") {
			return true
		}
		if t.Kind == TokIdent && controlKeywords[t.Text] {
			return false
		}
	}
	// method signatures: name(params) {  or  Type name(params) throws X {
	j := brace - 1
	for j > 0 && u.Tokens[j].Kind == TokIdent {
		j--
	}
	if !u.Tokens[j].Is(")") || u.Tokens[j].Partner < 1 || u.Tokens[j].Stmt != stmt {
		return false
	}
	open := u.Tokens[j].Partner
	name := u.Tokens[open-1]
	if name.Kind != TokIdent || keywords[name.Text] || controlKeywords[name.Text] {
		return false
	}
	if u.isDeclaration(open-1, open) {
		return true
	}
	if open < 2 {
		return false
	}
	// typed signatures: void name(, List<T> name(, int[] name(
	typ := u.Tokens[open-2]
	switch {
	case typ.Kind == TokIdent:
		return !controlKeywords[typ.Text] && typ.Text != "new" && typ.Text != "return" && typ.Text != "await"
	case typ.Is(">") || typ.Is("]"):
		return true
	}
	return false
}

func (u *Unit) pythonScopes() []model.Span {
	var out []model.Span
	for i, t := range u.Tokens {
		if t.Kind != TokIdent || t.Text != "def" || !t.LineStart {
			continue
		}
		indent := u.indentOf(i)
		last := u.blockEnd(i, indent)
		out = append(out, model.Span{Start: t.Span.Start, End: u.Tokens[last].Span.End})
	}
	return out
}

// blockEnd returns the last token of the Python block opened on the line of
// token i, whose header is indented by indent.
func (u *Unit) blockEnd(i, indent int) int {
	last := i
	for j := i + 1; j < len(u.Tokens); j++ {
		t := u.Tokens[j]
		if t.LineStart && t.ParenDepth == 0 && !lineContinues(u.Tokens[j-1], t) && u.indentOf(j) <= indent {
			break
		}
		last = j
	}
	return last
}
