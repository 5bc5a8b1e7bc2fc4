package source

import (
	"strings"

	"guardian/internal/model"
)

// Assignment is `target = value`, `target := value` or an object/dict
// entry `key: value`.
type Assignment struct {
	Target     string
	Name       string
	Op         string
	Span       model.Span
	TargetSpan model.Span
	ValueSpan  model.Span
	ValueKind  ArgKind
	// Literal is the unquoted value when ValueKind is KindString.
	Literal string
	Stmt    int
	Line    int
}

func (u *Unit) extractAssignments() []Assignment {
	var out []Assignment
	for i, t := range u.Tokens {
		if t.Kind != TokPunct || i == 0 {
			continue
		}
		var a Assignment
		var ok bool
		switch t.Text {
		case "=", ":=":
			a, ok = u.assignmentAt(i)
		case ":":
			a, ok = u.entryAt(i)
		}
		if ok {
			out = append(out, a)
		}
	}
	return out
}

func (u *Unit) assignmentAt(i int) (Assignment, bool) {
	eq := u.Tokens[i]
	if eq.Enclosing == '(' || eq.Enclosing == '[' {
		return Assignment{}, false
	}
	end := i - 1
	if !u.pathIdentAt(end) && !u.Tokens[end].Is("]") {
		return Assignment{}, false
	}
	start, target := u.pathBefore(end)
	if start > end {
		return Assignment{}, false
	}
	// typed declarations: name: Type = value
	if start >= 2 && u.Tokens[start-1].Is(":") && u.Tokens[start-1].Enclosing != '{' && u.pathIdentAt(start-2) {
		start -= 2
		target = u.Tokens[start].Text
		end = start
	}
	return u.buildAssignment(start, end, target, i)
}

// entryAt recognizes `key: value` inside object and dict literals, and
// top-level mapping keys in YAML.
func (u *Unit) entryAt(i int) (Assignment, bool) {
	key := u.Tokens[i-1]
	if key.Kind != TokIdent && key.Kind != TokString {
		return Assignment{}, false
	}
	colon := u.Tokens[i]
	objectEntry := colon.Enclosing == '{' && i >= 2 && (u.Tokens[i-2].Is("{") || u.Tokens[i-2].Is(","))
	yamlEntry := u.Language.Name == LangYAML && (key.LineStart || (i >= 2 && u.Tokens[i-2].Is("-") && u.Tokens[i-2].LineStart))
	if !objectEntry && !yamlEntry {
		return Assignment{}, false
	}
	target := key.Text
	if key.Kind == TokString {
		target = stringContent(key)
	}
	return u.buildAssignment(i-1, i-1, target, i)
}

func (u *Unit) buildAssignment(start, targetEnd int, target string, op int) (Assignment, bool) {
	last := u.valueEnd(op + 1)
	if last <= op {
		return Assignment{}, false
	}
	valueSpan := model.Span{Start: u.Tokens[op+1].Span.Start, End: u.Tokens[last].Span.End}
	kind, literal := u.classify(op+1, last+1)
	name := target
	if idx := strings.LastIndexAny(name, ".]"); idx >= 0 {
		name = name[idx+1:]
	}
	return Assignment{
		Target:     target,
		Name:       name,
		Op:         u.Tokens[op].Text,
		Span:       model.Span{Start: u.Tokens[start].Span.Start, End: valueSpan.End},
		TargetSpan: model.Span{Start: u.Tokens[start].Span.Start, End: u.Tokens[targetEnd].Span.End},
		ValueSpan:  valueSpan,
		ValueKind:  kind,
		Literal:    literal,
		Stmt:       u.Tokens[start].Stmt,
		Line:       u.Tokens[start].Line,
	}, true
}

// valueEnd returns the index of the last token of the expression starting
// at from, or from-1 when there is none.
func (u *Unit) valueEnd(from int) int {
	last := from - 1
	j := from
	for j < len(u.Tokens) {
		t := u.Tokens[j]
		if j > from && t.LineStart && !lineContinues(u.Tokens[j-1], t) {
			break
		}
		if t.isCloser() || t.Is(",") || t.Is(";") {
			break
		}
		if t.isOpener() {
			if t.Partner < j {
				break
			}
			last = t.Partner
			j = t.Partner + 1
			continue
		}
		last = j
		j++
	}
	return last
}
