package suppress

import (
	"fmt"
	"strings"

	"guardian/internal/source"
)

const marker = "guardian:suppress"

var commentPrefixes = []string{"//", "#", "--", "/*", "<!--", "*"}

// ScanInline collects guardian:suppress annotations from the unit's
// comments. Units without a comment view (binary input) are scanned line by
// line instead. Rejected annotations come back as warnings.
func ScanInline(u *source.Unit) ([]InlineSuppression, []string) {
	var found []InlineSuppression
	var warnings []string
	if !strings.Contains(strings.ToLower(u.Text), marker) {
		return nil, nil
	}

	collect := func(text string, offset int) {
		for _, raw := range strings.Split(text, "\n") {
			line, _ := u.Position(offset)
			offset += len(raw) + 1
			id, reason, ok, warn := parseSuppressionComment(raw)
			if warn != "" {
				warnings = append(warnings, fmt.Sprintf("%s:%d: %s", u.Path, line, warn))
			}
			if ok {
				found = append(found, InlineSuppression{RuleID: id, Reason: reason, Line: line})
			}
		}
	}

	if len(u.Comments) == 0 {
		collect(u.Text, 0)
		return found, warnings
	}
	for _, c := range u.Comments {
		collect(u.Slice(c), c.Start)
	}
	return found, warnings
}

// parseSuppressionComment extracts the rule id and optional reason from
// "guardian:suppress <RULE-ID>" or "guardian:suppress <RULE-ID> -- reason".
func parseSuppressionComment(line string) (ruleID, reason string, ok bool, warning string) {
	line = strings.TrimSpace(line)

	body := ""
	for _, prefix := range commentPrefixes {
		if strings.HasPrefix(line, prefix) {
			body = strings.TrimSpace(line[len(prefix):])
			break
		}
	}
	if body == "" {
		return "", "", false, ""
	}
	body = strings.TrimSuffix(body, "*/")
	body = strings.TrimSuffix(body, "-->")
	body = strings.TrimSpace(body)

	idx := strings.Index(strings.ToLower(body), marker)
	if idx < 0 {
		return "", "", false, ""
	}
	rest := strings.TrimSpace(body[idx+len(marker):])
	if rest == "" {
		return "", "", false, ""
	}

	if dash := strings.Index(rest, " -- "); dash >= 0 {
		ruleID = strings.TrimSpace(rest[:dash])
		reason = strings.TrimSpace(rest[dash+4:])
	} else {
		ruleID = rest
	}
	if fields := strings.Fields(ruleID); len(fields) > 0 {
		ruleID = fields[0]
	}
	if ruleID == "" {
		return "", "", false, ""
	}
	if ruleID == "*" {
		return "", "", false, "ignoring wildcard suppression 'guardian:suppress *'; name a rule id"
	}
	return strings.ToUpper(ruleID), reason, true, ""
}

// matchInline returns the reason of an annotation covering ruleID at line.
func matchInline(inline []InlineSuppression, ruleID string, line int) (string, bool) {
	for _, s := range inline {
		if s.Line != line && s.Line != line-1 {
			continue
		}
		if !matchGlob(s.RuleID, ruleID) {
			continue
		}
		if s.Reason != "" {
			return s.Reason, true
		}
		return "inline suppression", true
	}
	return "", false
}
