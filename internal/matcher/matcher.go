package matcher

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"guardian/internal/model"
	"guardian/internal/rules"
	"guardian/internal/source"
)

const defaultMaxMatches = 50

// Match evaluates every descriptor of r that admits the unit's language and
// returns the unfiltered hits. Identical spans found by several descriptors
// are reported once, for the first descriptor. Structural descriptors are
// skipped on degraded units.
func Match(ctx context.Context, u *source.Unit, r *rules.Compiled) ([]model.RawMatch, error) {
	if !r.AppliesTo(u.Language.Name, u.Path) {
		return nil, nil
	}

	var lowered string
	out := make([]model.RawMatch, 0, 4)
	seen := make(map[model.Span]struct{})
	for i := range r.Patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := &r.Patterns[i]
		if !p.Admits(u.Language.Name) {
			continue
		}
		if p.RequiresContext != "" {
			if lowered == "" {
				lowered = strings.ToLower(u.Text)
			}
			if !strings.Contains(lowered, strings.ToLower(p.RequiresContext)) {
				continue
			}
		}
		limit := p.MaxMatches
		if limit <= 0 {
			limit = defaultMaxMatches
		}

		var found []model.RawMatch
		var err error
		switch p.Mode {
		case model.ModeLiteralSubstring:
			found = literalMatches(u, p, limit)
		case model.ModeRawLineRegex:
			found, err = lineRegexMatches(ctx, u, p, limit)
		case model.ModeArgumentRegex:
			if !u.Degraded {
				found = argumentMatches(u, p, limit)
			}
		case model.ModeStructuralPredicate:
			if u.Degraded {
				break
			}
			if p.Site == rules.SiteConditional {
				found = conditionalMatches(u, p, limit)
			} else {
				found = assignmentMatches(u, p, limit)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("rule %s pattern %d: %w", r.ID, i, err)
		}

		for _, m := range found {
			if _, dup := seen[m.Span]; dup {
				continue
			}
			seen[m.Span] = struct{}{}
			m.RuleID = r.ID
			m.Mode = p.Mode
			m.Descriptor = p.Index
			out = append(out, m)
		}
	}
	return out, nil
}

func literalMatches(u *source.Unit, p *rules.CompiledPattern, limit int) []model.RawMatch {
	if strings.TrimSpace(p.Needle) == "" {
		return nil
	}
	out := make([]model.RawMatch, 0, 4)
	for n := 1; n <= u.LineCount() && len(out) < limit; n++ {
		span := u.LineSpan(n)
		line := u.Slice(span)
		for _, loc := range needleIndexes(line, p) {
			if len(out) >= limit {
				break
			}
			if !p.IncludeComments && u.InComment(span.Start+loc[0]) {
				continue
			}
			out = append(out, model.RawMatch{
				Span: model.Span{Start: span.Start + loc[0], End: span.Start + loc[1]},
				Text: line[loc[0]:loc[1]],
				Site: -1,
			})
		}
	}
	return out
}

// needleIndexes returns non-overlapping [start, end) offsets of the literal
// in line.
func needleIndexes(line string, p *rules.CompiledPattern) [][]int {
	if p.NeedleRe != nil {
		return p.NeedleRe.FindAllStringIndex(line, -1)
	}
	var out [][]int
	for offset := 0; offset <= len(line)-len(p.Needle); {
		idx := strings.Index(line[offset:], p.Needle)
		if idx < 0 {
			break
		}
		start := offset + idx
		out = append(out, []int{start, start + len(p.Needle)})
		offset = start + len(p.Needle)
	}
	return out
}

func lineRegexMatches(ctx context.Context, u *source.Unit, p *rules.CompiledPattern, limit int) ([]model.RawMatch, error) {
	out := make([]model.RawMatch, 0, 4)
	for n := 1; n <= u.LineCount() && len(out) < limit; n++ {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		span := u.LineSpan(n)
		line := u.Slice(span)
		for _, loc := range p.Re.FindAllStringSubmatchIndex(line, -1) {
			if len(out) >= limit {
				break
			}
			if loc[0] == loc[1] {
				continue
			}
			if !p.IncludeComments && u.InComment(span.Start+loc[0]) {
				continue
			}
			out = append(out, model.RawMatch{
				Span:   model.Span{Start: span.Start + loc[0], End: span.Start + loc[1]},
				Text:   line[loc[0]:loc[1]],
				Groups: submatches(line, loc),
				Site:   -1,
			})
		}
	}
	return out, nil
}

func submatches(s string, loc []int) []string {
	if len(loc) <= 2 {
		return nil
	}
	groups := make([]string, 0, len(loc)/2-1)
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, s[loc[i]:loc[i+1]])
	}
	return groups
}

// argumentMatches reports whole call expressions. A descriptor without
// argument constraints matches on the callee alone.
func argumentMatches(u *source.Unit, p *rules.CompiledPattern, limit int) []model.RawMatch {
	out := make([]model.RawMatch, 0, 4)
	for s, call := range u.Calls {
		if len(out) >= limit {
			break
		}
		if !p.CalleeRe.MatchString(call.Callee) {
			continue
		}
		groups, ok := matchArguments(p, call)
		if !ok {
			continue
		}
		out = append(out, model.RawMatch{
			Span:   call.Span,
			Text:   u.Slice(call.Span),
			Groups: groups,
			Site:   s,
		})
	}
	return out
}

func matchArguments(p *rules.CompiledPattern, call source.CallSite) ([]string, bool) {
	if p.Re == nil && p.ArgKindSet == nil && p.ArgName == "" {
		return nil, true
	}
	for i, arg := range call.Args {
		if p.ArgName != "" {
			if arg.Name != p.ArgName {
				continue
			}
		} else if p.Arg != rules.AnyArg && p.Arg != i {
			continue
		}
		if p.ArgKindSet != nil && !p.ArgKindSet[arg.Kind] {
			continue
		}
		if p.Re == nil {
			return nil, true
		}
		if m := p.Re.FindStringSubmatch(ArgumentValue(arg)); m != nil {
			return m[1:], true
		}
	}
	return nil, false
}

// ArgumentValue returns the argument text without a keyword prefix:
// True for shell=True.
func ArgumentValue(arg source.Arg) string {
	if arg.Name == "" {
		return arg.Text
	}
	if idx := strings.Index(arg.Text, "="); idx >= 0 {
		return strings.TrimSpace(arg.Text[idx+1:])
	}
	return arg.Text
}

func conditionalMatches(u *source.Unit, p *rules.CompiledPattern, limit int) []model.RawMatch {
	out := make([]model.RawMatch, 0, 2)
	for s, c := range u.Conditionals {
		if len(out) >= limit {
			break
		}
		if c.Expr == nil || !matchShape(p.ShapeTree, c.Expr) {
			continue
		}
		if p.RequireGrant && !grants(p, c) {
			continue
		}
		header := model.Span{Start: c.Span.Start, End: c.CondSpan.End}
		out = append(out, model.RawMatch{
			Span: header,
			Text: u.Slice(c.CondSpan),
			Site: s,
		})
	}
	return out
}

func grants(p *rules.CompiledPattern, c source.Conditional) bool {
	if c.ReturnsTruthy {
		return true
	}
	if p.GrantRe == nil {
		return false
	}
	for _, callee := range c.BodyCallees {
		if p.GrantRe.MatchString(callee) {
			return true
		}
	}
	return false
}

func assignmentMatches(u *source.Unit, p *rules.CompiledPattern, limit int) []model.RawMatch {
	out := make([]model.RawMatch, 0, 4)
	for s, a := range u.Assignments {
		if len(out) >= limit {
			break
		}
		if !p.TargetRe.MatchString(a.Target) {
			continue
		}
		if p.ValueKindSet != nil && !p.ValueKindSet[a.ValueKind] {
			continue
		}
		if p.MinValueLen > 0 && (a.ValueKind != source.KindString || utf8.RuneCountInString(a.Literal) < p.MinValueLen) {
			continue
		}
		value := a.Literal
		if a.ValueKind != source.KindString {
			value = u.Slice(a.ValueSpan)
		}
		var groups []string
		if p.ValueRe != nil {
			m := p.ValueRe.FindStringSubmatch(value)
			if m == nil {
				continue
			}
			groups = m[1:]
		}
		out = append(out, model.RawMatch{
			Span:   a.Span,
			Text:   u.Slice(a.Span),
			Groups: groups,
			Site:   s,
		})
	}
	return out
}
