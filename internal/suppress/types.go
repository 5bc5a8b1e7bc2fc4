package suppress

import "time"

const expiryLayout = "2006-01-02"

// Rule is an entry of .guardian/suppressions.yaml. Every field that is set
// must match; a rule with no match fields matches nothing.
type Rule struct {
	ID string `yaml:"id,omitempty" json:"id,omitempty"`
	// RuleID is a glob over rule ids, e.g. SEC-* or SUP-CFG-00?.
	RuleID   string `yaml:"rule,omitempty" json:"rule,omitempty"`
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
	Files    string `yaml:"files,omitempty" json:"files,omitempty"`
	Severity string `yaml:"severity,omitempty" json:"severity,omitempty"`

	Reason  string `yaml:"reason" json:"reason"`
	Author  string `yaml:"author,omitempty" json:"author,omitempty"`
	Expires string `yaml:"expires,omitempty" json:"expires,omitempty"`
}

// IsExpired reports whether the rule's expiry date lies before now. Rules
// with no or unparseable expiry never expire; see HasInvalidExpiry.
func (r Rule) IsExpired(now time.Time) bool {
	if r.Expires == "" {
		return false
	}
	t, err := time.Parse(expiryLayout, r.Expires)
	if err != nil {
		return false
	}
	return now.After(t)
}

func (r Rule) HasInvalidExpiry() bool {
	if r.Expires == "" {
		return false
	}
	_, err := time.Parse(expiryLayout, r.Expires)
	return err != nil
}

// InlineSuppression is a guardian:suppress annotation found in a comment.
// It covers matches on its own line and on the line below.
type InlineSuppression struct {
	RuleID string
	Reason string
	Line   int
}

type suppressionsFile struct {
	Suppressions []Rule `yaml:"suppressions"`
}

// Source values recorded on suppressed matches.
const (
	SourceExemption = "exemption"
	SourceInline    = "inline"
	SourceFile      = "file"
	SourceDedup     = "dedup"
)

// Verdict is the outcome of evaluating every suppression signal against one
// match. Full drops the match; otherwise each partial signal demotes it.
type Verdict struct {
	Full     bool
	Reason   string
	Source   string
	Partials int
	// Notes holds the reasons of the partial signals, in rule order.
	Notes []string
}
