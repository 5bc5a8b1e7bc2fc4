package suppress

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"guardian/internal/model"
	"guardian/internal/rules"
	"guardian/internal/source"
)

// Options carries the per-run and per-unit inputs of Evaluate. Now is fixed
// once per run so expiry decisions do not drift between files.
type Options struct {
	FileRules []Rule
	Now       time.Time
	Inline    []InlineSuppression
}

// Evaluate decides what happens to match m of rule r in unit u. Inline
// annotations and file rules always suppress fully. Any full exemption
// drops the match whatever the partial signals say; otherwise every partial
// exemption that holds is counted.
func Evaluate(u *source.Unit, r *rules.Compiled, m model.RawMatch, opts Options) Verdict {
	line, _ := u.Position(m.Span.Start)
	if reason, ok := matchInline(opts.Inline, r.ID, line); ok {
		return Verdict{Full: true, Reason: reason, Source: SourceInline}
	}
	if fr, ok := matchFileRules(opts.FileRules, opts.Now, r.ID, r.Category, r.Severity, u.Path); ok {
		return Verdict{Full: true, Reason: fr.Reason, Source: SourceFile}
	}

	var v Verdict
	for i := range r.Exemptions {
		ex := &r.Exemptions[i]
		if !holds(u, m, ex, line) {
			continue
		}
		reason := ex.Reason
		if reason == "" {
			reason = string(ex.Kind)
		}
		if ex.Effect == rules.EffectFull {
			return Verdict{Full: true, Reason: reason, Source: SourceExemption}
		}
		v.Partials++
		v.Notes = append(v.Notes, reason)
	}
	return v
}

func holds(u *source.Unit, m model.RawMatch, ex *rules.CompiledExemption, line int) bool {
	switch ex.Kind {
	case rules.ExemptMatchText:
		return ex.PatternRe.MatchString(m.Text)
	case rules.ExemptLineText:
		return ex.PatternRe.MatchString(u.LineText(line))
	case rules.ExemptPath:
		return ex.PatternRe.MatchString(filepath.ToSlash(u.Path))
	case rules.ExemptPrecedingCall:
		return precedingCall(u, m, ex)
	case rules.ExemptSameCallArgument:
		return sameCallArgument(u, m, ex)
	case rules.ExemptNearbyAssignment:
		return nearbyAssignment(u, m, ex)
	case rules.ExemptScopeLacks:
		return !ex.PatternRe.MatchString(scopeText(u, m.Span.Start))
	case rules.ExemptPlaceholder:
		return placeholder(u, m, ex, line)
	case rules.ExemptJWTClaim:
		return jwtClaim(m.Text, ex)
	}
	return false
}

func withinWindow(window, a, b int) bool {
	if window == 0 {
		return true
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= window
}

func precedingCall(u *source.Unit, m model.RawMatch, ex *rules.CompiledExemption) bool {
	scope := u.ScopeAt(m.Span.Start)
	stmt := u.StatementAt(m.Span.Start)
	for _, c := range u.Calls {
		if c.Span.End > m.Span.Start {
			continue
		}
		if !scope.Contains(c.Span.Start) || !withinWindow(ex.Window, stmt, c.Stmt) {
			continue
		}
		if ex.PatternRe.MatchString(c.Callee) {
			return true
		}
	}
	return false
}

// sameCallArgument tests every argument of the call the match came from, or
// of the innermost call enclosing a raw or structural match.
func sameCallArgument(u *source.Unit, m model.RawMatch, ex *rules.CompiledExemption) bool {
	call, ok := callOf(u, m)
	if !ok {
		return false
	}
	for _, arg := range call.Args {
		if ex.PatternRe.MatchString(strings.TrimSpace(arg.Text)) {
			return true
		}
	}
	return false
}

func callOf(u *source.Unit, m model.RawMatch) (source.CallSite, bool) {
	if m.Mode == model.ModeArgumentRegex && m.Site >= 0 && m.Site < len(u.Calls) {
		return u.Calls[m.Site], true
	}
	var best source.CallSite
	found := false
	for _, c := range u.Calls {
		if c.Span.Start <= m.Span.Start && m.Span.End <= c.Span.End {
			if !found || c.Span.Len() < best.Span.Len() {
				best, found = c, true
			}
		}
	}
	return best, found
}

func nearbyAssignment(u *source.Unit, m model.RawMatch, ex *rules.CompiledExemption) bool {
	scope := u.ScopeAt(m.Span.Start)
	stmt := u.StatementAt(m.Span.Start)
	for _, a := range u.Assignments {
		if !scope.Contains(a.Span.Start) || !withinWindow(ex.Window, stmt, a.Stmt) {
			continue
		}
		if !ex.PatternRe.MatchString(a.Target) {
			continue
		}
		value := a.Literal
		if a.ValueKind != source.KindString {
			value = u.Slice(a.ValueSpan)
		}
		if ex.ValueRe == nil || ex.ValueRe.MatchString(value) {
			return true
		}
	}
	return false
}

// scopeText returns the enclosing function from the start of its first
// line, so the signature is part of the text.
func scopeText(u *source.Unit, offset int) string {
	scope := u.ScopeAt(offset)
	line, _ := u.Position(scope.Start)
	start := u.LineSpan(line).Start
	return u.Slice(model.Span{Start: start, End: scope.End})
}

var placeholderWords = []string{
	"example", "placeholder", "your_", "your-", "xxx", "fake", "test", "demo",
	"sample", "dummy", "mock", "todo", "replace_", "change_me", "changeme", "insert_",
}

var placeholderValue = regexp.MustCompile(`(?i)^(x+|0+|(abc|123|test).*)$`)

func placeholder(u *source.Unit, m model.RawMatch, ex *rules.CompiledExemption, line int) bool {
	lineText := u.LineText(line)
	if ex.PatternRe != nil {
		return ex.PatternRe.MatchString(m.Text) || ex.PatternRe.MatchString(lineText)
	}

	value := m.Text
	if m.Mode == model.ModeStructuralPredicate && m.Site >= 0 && m.Site < len(u.Assignments) {
		if a := u.Assignments[m.Site]; a.Span == m.Span && a.ValueKind == source.KindString {
			value = a.Literal
		}
	}
	if placeholderValue.MatchString(value) || strings.ContainsAny(value, "<>") {
		return true
	}
	lower := strings.ToLower(lineText)
	for _, word := range placeholderWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

var jwtPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_\-]+\.(eyJ[A-Za-z0-9_\-]+)\.[A-Za-z0-9_\-]*`)

// jwtClaim decodes the first JWT in text and matches one payload claim. A
// missing claim reads as the empty string; text without a decodable JWT
// never satisfies the predicate.
func jwtClaim(text string, ex *rules.CompiledExemption) bool {
	claims, ok := decodeJWTPayload(text)
	if !ok {
		return false
	}
	value := ""
	if v, present := claims[ex.Claim]; present && v != nil {
		value = fmt.Sprint(v)
	}
	return ex.ValueRe.MatchString(value)
}

func decodeJWTPayload(text string) (map[string]any, bool) {
	sub := jwtPattern.FindStringSubmatch(text)
	if sub == nil {
		return nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(sub[1], "="))
	if err != nil {
		return nil, false
	}
	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, false
	}
	return claims, true
}
