package source

import (
	"strings"

	"guardian/internal/model"
)

type ExprKind string

const (
	ExprOr      ExprKind = "or"
	ExprAnd     ExprKind = "and"
	ExprNot     ExprKind = "not"
	ExprCompare ExprKind = "compare"
	ExprCall    ExprKind = "call"
	ExprOperand ExprKind = "operand"
	ExprLiteral ExprKind = "literal"
)

// Expr is a node of the condition shape grammar. Compare nodes hold exactly
// two operands, Not one, And and Or two or more.
type Expr struct {
	Kind     ExprKind
	Op       string
	Operands []*Expr
	// Text is the source text of a leaf. Path is the member path of an
	// operand or the callee of a call. Value is the unquoted content of a
	// literal, with booleans and nulls lower-cased.
	Text  string
	Path  string
	Value string
	// Implicit marks a comparison synthesized from a bare operand.
	Implicit bool
	Span     model.Span
}

// Field returns the last segment of an operand path: role for user.role.
func (e *Expr) Field() string {
	p := strings.TrimSuffix(e.Path, "()")
	if i := strings.LastIndexAny(p, ".]"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Subject returns the text a value pattern is matched against.
func (e *Expr) Subject() string {
	switch e.Kind {
	case ExprLiteral:
		return e.Value
	case ExprCall:
		return e.Path + "()"
	default:
		return e.Path
	}
}

// String renders the tree in prefix form, e.g.
// and(not(compare(active == true)), compare(role == admin)).
func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case ExprCompare:
		return "compare(" + e.Operands[0].String() + " " + e.Op + " " + e.Operands[1].String() + ")"
	case ExprOr, ExprAnd, ExprNot:
		parts := make([]string, len(e.Operands))
		for i, o := range e.Operands {
			parts[i] = o.String()
		}
		return string(e.Kind) + "(" + strings.Join(parts, ", ") + ")"
	case ExprCall:
		return e.Path + "()"
	default:
		return e.Subject()
	}
}

var compareOps = map[string]string{
	"==": "==", "===": "==", "!=": "!=", "!==": "!=",
	"<": "<", ">": ">", "<=": "<=", ">=": ">=", "in": "in", "is": "==",
}

var flipped = map[string]string{"<": ">", ">": "<", "<=": ">=", ">=": "<="}

type exprParser struct {
	u   *Unit
	pos int
	end int
}

// parseCondition parses tokens [a, b) into a canonical shape tree. It
// returns nil when the range is empty.
func (u *Unit) parseCondition(a, b int) *Expr {
	if a >= b {
		return nil
	}
	p := &exprParser{u: u, pos: a, end: b}
	e := p.parseOr()
	if e == nil {
		return nil
	}
	return canonical(e, true)
}

func (p *exprParser) peek() (Token, bool) {
	if p.pos >= p.end {
		return Token{}, false
	}
	return p.u.Tokens[p.pos], true
}

func (p *exprParser) atWord(words ...string) bool {
	t, ok := p.peek()
	if !ok {
		return false
	}
	for _, w := range words {
		if t.Text == w && (t.Kind == TokPunct || t.Kind == TokIdent) {
			return true
		}
	}
	return false
}

func (p *exprParser) parseOr() *Expr {
	left := p.parseAnd()
	for left != nil && p.atWord("||", "or") {
		p.pos++
		right := p.parseAnd()
		if right == nil {
			break
		}
		left = &Expr{Kind: ExprOr, Operands: []*Expr{left, right}, Span: join(left.Span, right.Span)}
	}
	return left
}

func (p *exprParser) parseAnd() *Expr {
	left := p.parseNot()
	for left != nil && p.atWord("&&", "and") {
		p.pos++
		right := p.parseNot()
		if right == nil {
			break
		}
		left = &Expr{Kind: ExprAnd, Operands: []*Expr{left, right}, Span: join(left.Span, right.Span)}
	}
	return left
}

func (p *exprParser) parseNot() *Expr {
	if p.atWord("!", "not") {
		start := p.u.Tokens[p.pos].Span
		p.pos++
		inner := p.parseNot()
		if inner == nil {
			return nil
		}
		return &Expr{Kind: ExprNot, Operands: []*Expr{inner}, Span: join(start, inner.Span)}
	}
	return p.parseCompare()
}

func (p *exprParser) parseCompare() *Expr {
	left := p.parsePrimary()
	if left == nil {
		return nil
	}
	t, ok := p.peek()
	if !ok {
		return left
	}
	op, isOp := compareOps[t.Text]
	if t.Kind == TokIdent && t.Text == "not" && p.pos+1 < p.end && p.u.Tokens[p.pos+1].Text == "in" {
		op, isOp = "not in", true
		p.pos++
	}
	if !isOp || t.Kind == TokString {
		return left
	}
	p.pos++
	if t.Text == "is" && p.atWord("not") {
		op = "!="
		p.pos++
	}
	right := p.parsePrimary()
	if right == nil {
		return left
	}
	return &Expr{Kind: ExprCompare, Op: op, Operands: []*Expr{left, right}, Span: join(left.Span, right.Span)}
}

// parsePrimary reads a parenthesized group or a single term that runs to
// the next logical or comparison operator.
func (p *exprParser) parsePrimary() *Expr {
	t, ok := p.peek()
	if !ok {
		return nil
	}
	start := p.pos
	if t.Is("(") && t.Partner > p.pos && t.Partner < p.end {
		inner := &exprParser{u: p.u, pos: p.pos + 1, end: t.Partner}
		e := inner.parseOr()
		p.pos = t.Partner + 1
		next, more := p.peek()
		if e != nil && inner.pos == inner.end && (!more || p.isBoundary(next) || p.isLogical(next)) {
			return e
		}
		// (a + b) * c is a single term
		p.pos = start
	}
	for p.pos < p.end {
		cur := p.u.Tokens[p.pos]
		if p.pos > start && p.isBoundary(cur) {
			break
		}
		if cur.isOpener() && cur.Partner > p.pos && cur.Partner < p.end {
			p.pos = cur.Partner + 1
			continue
		}
		p.pos++
	}
	if p.pos == start {
		return nil
	}
	return p.leaf(start, p.pos)
}

func (p *exprParser) isBoundary(t Token) bool {
	switch t.Kind {
	case TokPunct:
		switch t.Text {
		case "&&", "||", "==", "===", "!=", "!==", "<", ">", "<=", ">=":
			return true
		}
	case TokIdent:
		switch t.Text {
		case "and", "or", "is", "in", "not":
			return p.u.Language.Family == FamilyPython || t.Text == "in"
		}
	}
	return false
}

func (p *exprParser) isLogical(t Token) bool {
	if t.Kind == TokPunct {
		return t.Text == "&&" || t.Text == "||"
	}
	return t.Kind == TokIdent && (t.Text == "and" || t.Text == "or")
}

func (p *exprParser) leaf(a, b int) *Expr {
	u := p.u
	span := model.Span{Start: u.Tokens[a].Span.Start, End: u.Tokens[b-1].Span.End}
	e := &Expr{Text: u.Slice(span), Span: span}
	if b-a == 1 {
		t := u.Tokens[a]
		switch {
		case t.Kind == TokString:
			e.Kind, e.Value = ExprLiteral, stringContent(t)
			return e
		case t.Kind == TokNumber:
			e.Kind, e.Value = ExprLiteral, t.Text
			return e
		case t.Kind == TokIdent && literalWords[t.Text]:
			e.Kind, e.Value = ExprLiteral, strings.ToLower(t.Text)
			if e.Value == "none" || e.Value == "nil" || e.Value == "undefined" {
				e.Value = "null"
			}
			return e
		}
	}
	if start, path := u.pathBefore(b - 1); start == a {
		if u.Tokens[b-1].Is(")") {
			e.Kind = ExprCall
			e.Path = strings.TrimSuffix(path, "()")
			return e
		}
		e.Kind, e.Path = ExprOperand, path
		return e
	}
	e.Kind, e.Path = ExprOperand, strings.Join(strings.Fields(e.Text), " ")
	return e
}

func join(a, b model.Span) model.Span {
	return model.Span{Start: min(a.Start, b.Start), End: max(a.End, b.End)}
}

// canonical rewrites a tree into the normal form rules are written
// against. boolCtx is true where the node is used as a truth value.
func canonical(e *Expr, boolCtx bool) *Expr {
	switch e.Kind {
	case ExprOr, ExprAnd:
		var ops []*Expr
		for _, o := range e.Operands {
			c := canonical(o, true)
			if c.Kind == e.Kind {
				ops = append(ops, c.Operands...)
			} else {
				ops = append(ops, c)
			}
		}
		e.Operands = ops
		return e
	case ExprNot:
		inner := canonical(e.Operands[0], true)
		if inner.Kind == ExprNot {
			return inner.Operands[0]
		}
		e.Operands[0] = inner
		return e
	case ExprCompare:
		return canonicalCompare(e)
	case ExprOperand:
		if boolCtx {
			return &Expr{
				Kind:     ExprCompare,
				Op:       "==",
				Operands: []*Expr{e, boolLiteral(e.Span, "true")},
				Implicit: true,
				Span:     e.Span,
			}
		}
	}
	return e
}

func canonicalCompare(e *Expr) *Expr {
	left, right := e.Operands[0], e.Operands[1]
	if left.Kind == ExprLiteral && right.Kind != ExprLiteral {
		left, right = right, left
		if f, ok := flipped[e.Op]; ok {
			e.Op = f
		}
	}
	e.Operands = []*Expr{left, right}
	if right.Kind != ExprLiteral || (right.Value != "true" && right.Value != "false") {
		return e
	}
	switch {
	case e.Op == "==" && right.Value == "false", e.Op == "!=" && right.Value == "true":
		e.Op = "=="
		e.Operands[1] = boolLiteral(right.Span, "true")
		return &Expr{Kind: ExprNot, Operands: []*Expr{e}, Span: e.Span}
	case e.Op == "!=" && right.Value == "false":
		e.Op = "=="
		e.Operands[1] = boolLiteral(right.Span, "true")
	}
	return e
}

func boolLiteral(span model.Span, v string) *Expr {
	return &Expr{Kind: ExprLiteral, Text: v, Value: v, Span: span}
}
