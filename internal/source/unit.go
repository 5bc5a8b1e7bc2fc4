package source

import (
	"bytes"
	"sort"
	"strings"
	"unicode/utf8"

	"guardian/internal/model"
)

// Unit is one file's raw text plus its best-effort structural view. A unit
// is built once per file, read by every rule, and never mutated after
// Normalize returns.
type Unit struct {
	Path     string
	Language Language
	Text     string

	Tokens       []Token
	Comments     []model.Span
	Calls        []CallSite
	Assignments  []Assignment
	Literals     []Literal
	Conditionals []Conditional
	Scopes       []model.Span

	Binary bool
	// Degraded units carry no structural view; only raw-text modes apply.
	Degraded       bool
	DegradedReason string

	lineStarts []int
}

type Literal struct {
	Span         model.Span
	Value        string
	Quote        byte
	Interpolated bool
}

// Normalize builds the structural view of a file. It never fails: malformed
// input yields a degraded unit that still supports raw-text matching.
func Normalize(path string, content []byte, hint string) *Unit {
	u := &Unit{
		Path:     path,
		Language: DetectLanguage(path, hint),
		Text:     string(content),
	}
	u.lineStarts = lineStarts(u.Text)

	if isBinary(content) {
		u.Binary = true
		u.degrade("binary content")
		return u
	}

	tokens, comments, problems := lex(u.Text, u.Language)
	u.Tokens = tokens
	u.Comments = comments
	if len(problems) > 0 {
		u.degrade(problems[0])
		return u
	}

	u.assignStatements()
	u.Literals = u.extractLiterals()
	u.Calls = u.extractCalls()
	u.Assignments = u.extractAssignments()
	u.Scopes = u.extractScopes()
	u.Conditionals = u.extractConditionals()
	return u
}

func (u *Unit) degrade(reason string) {
	u.Degraded = true
	u.DegradedReason = reason
}

func isBinary(content []byte) bool {
	head := content
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// LineCount returns the number of lines, counting a trailing partial line.
func (u *Unit) LineCount() int {
	n := len(u.lineStarts)
	if n > 1 && u.lineStarts[n-1] == len(u.Text) {
		return n - 1
	}
	return n
}

// LineSpan returns the span of 1-based line n without its line terminator.
func (u *Unit) LineSpan(n int) model.Span {
	if n < 1 || n > len(u.lineStarts) {
		return model.Span{}
	}
	start := u.lineStarts[n-1]
	end := len(u.Text)
	if n < len(u.lineStarts) {
		end = u.lineStarts[n] - 1
	}
	if end > start && u.Text[end-1] == '\r' {
		end--
	}
	return model.Span{Start: start, End: end}
}

func (u *Unit) LineText(n int) string {
	return u.Slice(u.LineSpan(n))
}

// Position converts a byte offset to a 1-based line and a 1-based column
// counted in runes.
func (u *Unit) Position(offset int) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(u.Text) {
		offset = len(u.Text)
	}
	idx := sort.Search(len(u.lineStarts), func(i int) bool { return u.lineStarts[i] > offset }) - 1
	if idx < 0 {
		idx = 0
	}
	start := u.lineStarts[idx]
	return idx + 1, utf8.RuneCountInString(u.Text[start:offset]) + 1
}

func (u *Unit) Slice(s model.Span) string {
	if s.Start < 0 || s.End > len(u.Text) || s.Start > s.End {
		return ""
	}
	return u.Text[s.Start:s.End]
}

// InComment reports whether offset falls inside a comment.
func (u *Unit) InComment(offset int) bool {
	i := sort.Search(len(u.Comments), func(i int) bool { return u.Comments[i].End > offset })
	return i < len(u.Comments) && u.Comments[i].Contains(offset)
}

// ScopeAt returns the innermost function body containing offset, or the
// whole file.
func (u *Unit) ScopeAt(offset int) model.Span {
	best := model.Span{Start: 0, End: len(u.Text)}
	for _, s := range u.Scopes {
		if s.Contains(offset) && s.Len() < best.Len() {
			best = s
		}
	}
	return best
}

// StatementAt returns the statement index of the token at or before offset.
func (u *Unit) StatementAt(offset int) int {
	i := u.tokenAt(offset)
	if i < 0 {
		return 0
	}
	return u.Tokens[i].Stmt
}

func (u *Unit) tokenAt(offset int) int {
	return sort.Search(len(u.Tokens), func(i int) bool { return u.Tokens[i].Span.Start > offset }) - 1
}

// indentOf returns the leading whitespace width of the line holding token i.
func (u *Unit) indentOf(i int) int {
	line, _ := u.Position(u.Tokens[i].Span.Start)
	text := u.LineText(line)
	return len(text) - len(strings.TrimLeft(text, " \t"))
}

// lineContinues reports whether the line break before cur continues the
// statement ending with prev.
func lineContinues(prev, cur Token) bool {
	if prev.Kind == TokPunct {
		switch prev.Text {
		case ",", ".", "?.", "(", "[", "+", "-", "*", "/", "%", "=", "==", "===", "!=", "!==",
			"&&", "||", "?", "=>", "\\", "<", ">", "<=", ">=", "??", "|", "&":
			return true
		}
	}
	if prev.Kind == TokIdent && (prev.Text == "and" || prev.Text == "or" || prev.Text == "not") {
		return true
	}
	if cur.Kind == TokPunct {
		switch cur.Text {
		case ".", "?.", "&&", "||", "?", "??", "+", "=>":
			return true
		}
	}
	return false
}

// assignStatements numbers statements. A statement ends at ';', at braces,
// and at a line break outside parentheses that does not continue the
// previous line.
func (u *Unit) assignStatements() {
	stmt := 0
	for i := range u.Tokens {
		t := &u.Tokens[i]
		if i > 0 && t.LineStart && t.ParenDepth == 0 && !lineContinues(u.Tokens[i-1], *t) && !u.Tokens[i-1].Is("{") && !u.Tokens[i-1].Is(";") && !u.Tokens[i-1].Is("}") {
			stmt++
		}
		t.Stmt = stmt
		if t.Is(";") || t.Is("{") || t.Is("}") {
			stmt++
		}
	}
}

func (u *Unit) extractLiterals() []Literal {
	var out []Literal
	for _, t := range u.Tokens {
		if t.Kind != TokString || t.Quote == '/' {
			continue
		}
		out = append(out, Literal{
			Span:         t.Span,
			Value:        stringContent(t),
			Quote:        t.Quote,
			Interpolated: t.Interpolated,
		})
	}
	return out
}

// stringContent strips the prefix and delimiters of a string token.
func stringContent(t Token) string {
	s := t.Text[len(t.Prefix):]
	n := 1
	if t.Triple {
		n = 3
	}
	if len(s) < 2*n {
		return ""
	}
	return s[n : len(s)-n]
}
