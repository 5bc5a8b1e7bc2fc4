package source

import (
	"fmt"
	"strings"

	"guardian/internal/model"
)

type TokenKind int

const (
	TokIdent TokenKind = iota
	TokNumber
	TokString
	TokPunct
)

type Token struct {
	Kind TokenKind
	Text string
	Span model.Span
	Line int

	// String tokens only. Quote is the opening delimiter; a regex literal
	// uses '/'.
	Quote        byte
	Prefix       string
	Triple       bool
	Interpolated bool

	// Filled by the bracket pass.
	Depth      int
	ParenDepth int
	Enclosing  byte
	Partner    int

	Stmt      int
	LineStart bool
}

func (t Token) Is(text string) bool {
	return t.Kind == TokPunct && t.Text == text
}

func (t Token) isOpener() bool {
	return t.Kind == TokPunct && (t.Text == "(" || t.Text == "[" || t.Text == "{")
}

func (t Token) isCloser() bool {
	return t.Kind == TokPunct && (t.Text == ")" || t.Text == "]" || t.Text == "}")
}

// multi-character punctuation, longest first.
var operators = []string{
	"===", "!==", "...", "**=", "<<=", ">>=",
	"==", "!=", "<=", ">=", "&&", "||", "=>", "->", "::", "?.", "??",
	"+=", "-=", "*=", "/=", "%=", "|=", "&=", "^=", ":=", "++", "--", "<<", ">>", "**",
}

// regexPreceders are tokens after which a '/' starts a regex literal.
var regexPreceders = map[string]bool{
	"(": true, ",": true, "=": true, ":": true, "[": true, "!": true, "&": true,
	"|": true, "?": true, "{": true, ";": true, "&&": true, "||": true, "==": true,
	"===": true, "!=": true, "!==": true, "=>": true, "+": true, "-": true, "*": true,
	"%": true, "<": true, ">": true, "<=": true, ">=": true, "~": true, "^": true,
	"??": true, "return": true, "typeof": true, "case": true, "in": true, "of": true,
	"delete": true, "void": true, "throw": true, "new": true, "yield": true, "await": true,
}

type lexer struct {
	src      string
	lang     Language
	pos      int
	line     int
	tokens   []Token
	comments []model.Span
	problems []string
}

func lex(src string, lang Language) ([]Token, []model.Span, []string) {
	l := &lexer{src: src, lang: lang, line: 1}
	l.run()
	l.link()
	return l.tokens, l.comments, l.problems
}

func (l *lexer) problem(format string, args ...any) {
	l.problems = append(l.problems, fmt.Sprintf(format, args...))
}

func (l *lexer) run() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
		case l.commentStart():
			l.lexComment()
		case l.quoteStartsString(c):
			l.lexString(l.pos, "")
		case isIdentStart(c):
			l.lexIdent()
		case isDigit(c):
			l.lexNumber()
		case c == '/' && l.lang.IsJSLike() && l.regexAllowed() && l.lexRegex():
		default:
			l.lexPunct()
		}
	}
}

func (l *lexer) commentStart() bool {
	rest := l.src[l.pos:]
	switch l.lang.Family {
	case FamilyCLike:
		return strings.HasPrefix(rest, "//") || strings.HasPrefix(rest, "/*")
	case FamilyPython:
		return rest[0] == '#'
	case FamilyHash:
		if rest[0] != '#' {
			return false
		}
		// "a#b" is data in shell and yaml, only "#" after blank space opens a comment.
		return l.pos == 0 || isSpace(l.src[l.pos-1])
	case FamilySQL:
		return strings.HasPrefix(rest, "--") || strings.HasPrefix(rest, "/*")
	default:
		return false
	}
}

func (l *lexer) lexComment() {
	start := l.pos
	if strings.HasPrefix(l.src[l.pos:], "/*") {
		end := strings.Index(l.src[l.pos+2:], "*/")
		if end < 0 {
			l.problem("unterminated block comment at line %d", l.line)
			l.advanceTo(len(l.src))
		} else {
			l.advanceTo(l.pos + 2 + end + 2)
		}
		l.comments = append(l.comments, model.Span{Start: start, End: l.pos})
		return
	}
	end := strings.IndexByte(l.src[l.pos:], '\n')
	if end < 0 {
		l.pos = len(l.src)
	} else {
		l.pos += end
	}
	l.comments = append(l.comments, model.Span{Start: start, End: l.pos})
}

// advanceTo moves the cursor while keeping the line counter current.
func (l *lexer) advanceTo(pos int) {
	l.line += strings.Count(l.src[l.pos:pos], "\n")
	l.pos = pos
}

func (l *lexer) quoteStartsString(c byte) bool {
	switch l.lang.Name {
	case LangText, LangHTML:
		return false
	case LangJSON:
		if c != '"' {
			return false
		}
	}
	if c == '`' {
		return l.lang.Family == FamilyCLike
	}
	if c != '"' && c != '\'' {
		return false
	}
	// A quote glued to an identifier is an apostrophe in prose or markup.
	if l.pos > 0 && isIdentChar(l.src[l.pos-1]) {
		return false
	}
	return true
}

func (l *lexer) lexString(start int, prefix string) {
	quote := l.src[l.pos]
	tok := Token{Kind: TokString, Quote: quote, Prefix: prefix, Line: l.line}

	switch {
	case quote == '`' && l.lang.IsJSLike():
		tok.Interpolated = l.scanTemplate()
	case quote == '`':
		end := strings.IndexByte(l.src[l.pos+1:], '`')
		if end < 0 {
			l.problem("unterminated raw string at line %d", tok.Line)
			l.advanceTo(len(l.src))
		} else {
			l.advanceTo(l.pos + 1 + end + 1)
		}
	case l.lang.Family == FamilyPython && strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3)):
		tok.Triple = true
		l.scanTriple(quote)
	default:
		l.scanQuoted(quote)
	}

	tok.Span = model.Span{Start: start, End: l.pos}
	tok.Text = l.src[start:l.pos]
	if strings.ContainsAny(strings.ToLower(prefix), "f") {
		tok.Interpolated = hasFormatField(tok.Text[len(prefix):])
	}
	l.tokens = append(l.tokens, tok)
}

func (l *lexer) scanQuoted(quote byte) {
	multiline := l.lang.Family != FamilyCLike && l.lang.Family != FamilyPython
	i := l.pos + 1
	for i < len(l.src) {
		switch c := l.src[i]; {
		case c == '\\':
			i += 2
			continue
		case c == quote:
			l.advanceTo(i + 1)
			return
		case c == '\n' && !multiline:
			l.problem("unterminated string literal at line %d", l.line)
			l.advanceTo(i)
			return
		}
		i++
	}
	l.problem("unterminated string literal at line %d", l.line)
	l.advanceTo(len(l.src))
}

func (l *lexer) scanTriple(quote byte) {
	closer := strings.Repeat(string(quote), 3)
	i := l.pos + 3
	for i < len(l.src) {
		if l.src[i] == '\\' {
			i += 2
			continue
		}
		if strings.HasPrefix(l.src[i:], closer) {
			l.advanceTo(i + 3)
			return
		}
		i++
	}
	l.problem("unterminated triple-quoted string at line %d", l.line)
	l.advanceTo(len(l.src))
}

// scanTemplate consumes a JS template literal and reports whether it
// contains a ${...} substitution.
func (l *lexer) scanTemplate() bool {
	startLine := l.line
	interpolated := false
	i := l.pos + 1
	for i < len(l.src) {
		switch {
		case l.src[i] == '\\':
			i += 2
			continue
		case l.src[i] == '`':
			l.advanceTo(i + 1)
			return interpolated
		case strings.HasPrefix(l.src[i:], "${"):
			interpolated = true
			end, ok := skipSubstitution(l.src, i+2)
			if !ok {
				l.problem("unterminated template substitution at line %d", startLine)
				l.advanceTo(len(l.src))
				return interpolated
			}
			i = end
			continue
		}
		i++
	}
	l.problem("unterminated template literal at line %d", startLine)
	l.advanceTo(len(l.src))
	return interpolated
}

// skipSubstitution returns the offset just past the '}' closing a template
// substitution that starts at i.
func skipSubstitution(src string, i int) (int, bool) {
	depth := 1
	for i < len(src) {
		switch c := src[i]; c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		case '\'', '"':
			j := i + 1
			for j < len(src) && src[j] != c && src[j] != '\n' {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			i = j
		case '`':
			j := i + 1
			for j < len(src) && src[j] != '`' {
				if src[j] == '\\' {
					j++
				} else if strings.HasPrefix(src[j:], "${") {
					end, ok := skipSubstitution(src, j+2)
					if !ok {
						return len(src), false
					}
					j = end
					continue
				}
				j++
			}
			i = j
		}
		i++
	}
	return len(src), false
}

func hasFormatField(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '{' {
			i++
			continue
		}
		return true
	}
	return false
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
		l.pos++
	}
	word := l.src[start:l.pos]
	if l.lang.Family == FamilyPython && l.pos < len(l.src) && (l.src[l.pos] == '\'' || l.src[l.pos] == '"') && isStringPrefix(word) {
		l.lexString(start, word)
		return
	}
	l.tokens = append(l.tokens, Token{Kind: TokIdent, Text: word, Span: model.Span{Start: start, End: l.pos}, Line: l.line})
}

func isStringPrefix(word string) bool {
	if len(word) == 0 || len(word) > 2 {
		return false
	}
	for _, c := range strings.ToLower(word) {
		if !strings.ContainsRune("rbuf", c) {
			return false
		}
	}
	return true
}

func (l *lexer) lexNumber() {
	start := l.pos
	for l.pos < len(l.src) && (isIdentChar(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	l.tokens = append(l.tokens, Token{Kind: TokNumber, Text: l.src[start:l.pos], Span: model.Span{Start: start, End: l.pos}, Line: l.line})
}

func (l *lexer) regexAllowed() bool {
	if len(l.tokens) == 0 {
		return true
	}
	prev := l.tokens[len(l.tokens)-1]
	switch prev.Kind {
	case TokPunct:
		return regexPreceders[prev.Text]
	case TokIdent:
		return regexPreceders[prev.Text]
	default:
		return false
	}
}

// lexRegex consumes a JS regex literal. It reports false, consuming
// nothing, when the slash turns out to be division.
func (l *lexer) lexRegex() bool {
	start := l.pos
	inClass := false
	i := l.pos + 1
	for i < len(l.src) {
		c := l.src[i]
		switch {
		case c == '\n':
			return false
		case c == '\\':
			i += 2
			continue
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			i++
			for i < len(l.src) && isIdentChar(l.src[i]) {
				i++
			}
			l.pos = i
			l.tokens = append(l.tokens, Token{
				Kind:  TokString,
				Text:  l.src[start:i],
				Span:  model.Span{Start: start, End: i},
				Line:  l.line,
				Quote: '/',
			})
			return true
		}
		i++
	}
	return false
}

func (l *lexer) lexPunct() {
	start := l.pos
	rest := l.src[l.pos:]
	text := rest[:1]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			text = op
			break
		}
	}
	l.pos += len(text)
	l.tokens = append(l.tokens, Token{Kind: TokPunct, Text: text, Span: model.Span{Start: start, End: l.pos}, Line: l.line})
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

var closers = map[string]string{")": "(", "]": "[", "}": "{"}

// link fills bracket partners, depths, line starts and statement indices.
// It reports unbalanced brackets for code families.
func (l *lexer) link() {
	var stack []int
	parens := 0
	reported := false
	for i := range l.tokens {
		t := &l.tokens[i]
		t.Partner = -1
		t.LineStart = i == 0 || spansLines(l.src, l.tokens[i-1].Span.End, t.Span.Start)
		if t.Kind == TokPunct {
			if open, ok := closers[t.Text]; ok {
				if len(stack) > 0 && l.tokens[stack[len(stack)-1]].Text == open {
					o := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					if open != "{" {
						parens--
					}
					t.Partner = o
					l.tokens[o].Partner = i
				} else if !reported && l.checksBrackets() {
					l.problem("unbalanced %q at line %d", t.Text, t.Line)
					reported = true
				}
			}
		}
		t.Depth = len(stack)
		t.ParenDepth = parens
		if len(stack) > 0 {
			t.Enclosing = l.tokens[stack[len(stack)-1]].Text[0]
		}
		if t.isOpener() {
			stack = append(stack, i)
			if t.Text != "{" {
				parens++
			}
		}
	}
	if len(stack) > 0 && !reported && l.checksBrackets() {
		o := l.tokens[stack[0]]
		l.problem("unclosed %q opened at line %d", o.Text, o.Line)
	}
}

func (l *lexer) checksBrackets() bool {
	return l.lang.Family == FamilyCLike || l.lang.Family == FamilyPython
}

// spansLines reports whether a newline separates two offsets. Line alone is
// not enough after a multi-line string, which records its starting line.
func spansLines(src string, from, to int) bool {
	if from > to {
		return false
	}
	return strings.Contains(src[from:to], "\n")
}
