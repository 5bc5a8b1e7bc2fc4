package matcher

import (
	"regexp"

	"guardian/internal/rules"
	"guardian/internal/source"
)

// matchShape reports whether expression e has the shape s. The operands of
// an and/or shape must each match a distinct operand of the expression, in
// any order; the expression may have more operands than the shape.
func matchShape(s *rules.CompiledShape, e *source.Expr) bool {
	if s == nil || e == nil {
		return false
	}
	switch s.Kind {
	case rules.ShapeAny:
		return true
	case rules.ShapeNot:
		return e.Kind == source.ExprNot && matchShape(s.Operands[0], e.Operands[0])
	case rules.ShapeAnd:
		return e.Kind == source.ExprAnd && assignOperands(s.Operands, e.Operands, make([]bool, len(e.Operands)))
	case rules.ShapeOr:
		return e.Kind == source.ExprOr && assignOperands(s.Operands, e.Operands, make([]bool, len(e.Operands)))
	case rules.ShapeCompare:
		if e.Kind != source.ExprCompare || len(e.Operands) != 2 {
			return false
		}
		if s.Ops != nil && !s.Ops[e.Op] {
			return false
		}
		left, right := e.Operands[0], e.Operands[1]
		return matches(s.Path, left.Path) && matches(s.Field, left.Field()) && matches(s.Value, right.Subject())
	case rules.ShapeCall:
		return e.Kind == source.ExprCall && matches(s.Path, e.Path) && matches(s.Field, e.Field())
	}
	return false
}

func assignOperands(shapes []*rules.CompiledShape, exprs []*source.Expr, used []bool) bool {
	if len(shapes) == 0 {
		return true
	}
	for i, e := range exprs {
		if used[i] || !matchShape(shapes[0], e) {
			continue
		}
		used[i] = true
		if assignOperands(shapes[1:], exprs, used) {
			return true
		}
		used[i] = false
	}
	return false
}

func matches(re *regexp.Regexp, s string) bool {
	return re == nil || re.MatchString(s)
}
