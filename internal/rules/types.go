package rules

import (
	"guardian/internal/model"
	"guardian/internal/source"
)

const APIVersion = "guardian/v1"

type Status string

const (
	StatusDraft    Status = "draft"
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceCustom  Source = "custom"
)

// AnyArg selects every argument of a call.
const AnyArg = -1

type Site string

const (
	SiteConditional Site = "conditional"
	SiteAssignment  Site = "assignment"
)

type ShapeKind string

const (
	ShapeAnd     ShapeKind = "and"
	ShapeOr      ShapeKind = "or"
	ShapeNot     ShapeKind = "not"
	ShapeCompare ShapeKind = "compare"
	ShapeCall    ShapeKind = "call"
	ShapeAny     ShapeKind = "any"
)

// Shape is a pattern over the condition shape grammar. Path, Field and
// Value are regular expressions; Path and Field apply to the left operand
// of a comparison (or the callee of a call), Value to the right operand.
type Shape struct {
	Kind     ShapeKind `yaml:"kind" json:"kind"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	Field    string    `yaml:"field,omitempty" json:"field,omitempty"`
	Ops      []string  `yaml:"ops,omitempty" json:"ops,omitempty"`
	Value    string    `yaml:"value,omitempty" json:"value,omitempty"`
	Operands []Shape   `yaml:"operands,omitempty" json:"operands,omitempty"`
}

// Pattern is one descriptor of a rule. Which fields apply depends on Mode.
type Pattern struct {
	Mode      model.MatchMode `yaml:"mode" json:"mode"`
	Languages []string        `yaml:"languages,omitempty" json:"languages,omitempty"`

	// literal_substring
	Literal       string `yaml:"literal,omitempty" json:"literal,omitempty"`
	CaseSensitive bool   `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`

	// raw_line_regex; for argument_regex it applies to the argument text.
	Regex string `yaml:"regex,omitempty" json:"regex,omitempty"`

	// argument_regex
	Callee   string           `yaml:"callee,omitempty" json:"callee,omitempty"`
	Arg      int              `yaml:"arg,omitempty" json:"arg,omitempty"`
	ArgKinds []source.ArgKind `yaml:"arg_kinds,omitempty" json:"arg_kinds,omitempty"`
	ArgName  string           `yaml:"arg_name,omitempty" json:"arg_name,omitempty"`

	// structural_predicate
	Site         Site             `yaml:"site,omitempty" json:"site,omitempty"`
	Shape        *Shape           `yaml:"shape,omitempty" json:"shape,omitempty"`
	RequireGrant bool             `yaml:"require_grant,omitempty" json:"require_grant,omitempty"`
	GrantCallee  string           `yaml:"grant_callee,omitempty" json:"grant_callee,omitempty"`
	Target       string           `yaml:"target,omitempty" json:"target,omitempty"`
	ValueKinds   []source.ArgKind `yaml:"value_kinds,omitempty" json:"value_kinds,omitempty"`
	ValueRegex   string           `yaml:"value_regex,omitempty" json:"value_regex,omitempty"`
	MinValueLen  int              `yaml:"min_value_len,omitempty" json:"min_value_len,omitempty"`

	// RequiresContext gates the descriptor on the unit text containing
	// this string, case-insensitively.
	RequiresContext string `yaml:"requires_context,omitempty" json:"requires_context,omitempty"`
	IncludeComments bool   `yaml:"include_comments,omitempty" json:"include_comments,omitempty"`
	MaxMatches      int    `yaml:"max_matches,omitempty" json:"max_matches,omitempty"`
}

type ExemptionKind string

const (
	ExemptMatchText        ExemptionKind = "match_text"
	ExemptLineText         ExemptionKind = "line_text"
	ExemptPath             ExemptionKind = "path"
	ExemptPrecedingCall    ExemptionKind = "preceding_call"
	ExemptSameCallArgument ExemptionKind = "same_call_argument"
	ExemptNearbyAssignment ExemptionKind = "nearby_assignment"
	ExemptScopeLacks       ExemptionKind = "scope_lacks"
	ExemptPlaceholder      ExemptionKind = "placeholder"
	ExemptJWTClaim         ExemptionKind = "jwt_claim"
)

var ExemptionKinds = []ExemptionKind{
	ExemptMatchText, ExemptLineText, ExemptPath, ExemptPrecedingCall, ExemptSameCallArgument,
	ExemptNearbyAssignment, ExemptScopeLacks, ExemptPlaceholder, ExemptJWTClaim,
}

type Effect string

const (
	EffectFull    Effect = "full"
	EffectPartial Effect = "partial"
)

// Exemption is a predicate that drops (full) or demotes (partial) a match.
//
//	match_text          Pattern on the matched text
//	line_text           Pattern on the text of the match's first line
//	path                Pattern on the slash-separated unit path
//	preceding_call      a call whose callee matches Pattern earlier in the
//	                    same function scope, within Window statements
//	same_call_argument  another argument of the matched call matches Pattern
//	nearby_assignment   an assignment in scope whose target matches Pattern
//	                    and whose value matches Value, within Window
//	scope_lacks         the enclosing scope text does not match Pattern
//	placeholder         the matched text or line looks like a placeholder;
//	                    Pattern overrides the default word list
//	jwt_claim           the matched JWT payload has Claim matching Value
type Exemption struct {
	Kind    ExemptionKind `yaml:"kind" json:"kind"`
	Effect  Effect        `yaml:"effect" json:"effect"`
	Pattern string        `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Value   string        `yaml:"value,omitempty" json:"value,omitempty"`
	Claim   string        `yaml:"claim,omitempty" json:"claim,omitempty"`
	Window  int           `yaml:"window,omitempty" json:"window,omitempty"`
	Reason  string        `yaml:"reason,omitempty" json:"reason,omitempty"`
}

type Scope struct {
	IncludeGlobs []string `yaml:"include_globs,omitempty" json:"include_globs,omitempty"`
	ExcludeGlobs []string `yaml:"exclude_globs,omitempty" json:"exclude_globs,omitempty"`
}

type Rule struct {
	ID          string         `yaml:"id" json:"id"`
	Title       string         `yaml:"title" json:"title"`
	Category    model.Category `yaml:"category" json:"category"`
	Severity    model.Severity `yaml:"severity" json:"severity"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Remediation string         `yaml:"remediation,omitempty" json:"remediation,omitempty"`
	CWE         string         `yaml:"cwe,omitempty" json:"cwe,omitempty"`
	Status      Status         `yaml:"status,omitempty" json:"status,omitempty"`
	Source      Source         `yaml:"source,omitempty" json:"source,omitempty"`
	Languages   []string       `yaml:"languages,omitempty" json:"languages,omitempty"`
	Patterns    []Pattern      `yaml:"patterns" json:"patterns"`
	Exemptions  []Exemption    `yaml:"exemptions,omitempty" json:"exemptions,omitempty"`
	Scope       Scope          `yaml:"scope,omitempty" json:"scope,omitempty"`
}

// Pack is the document format of a rule file.
type Pack struct {
	APIVersion string `yaml:"api_version" json:"api_version"`
	Rules      []Rule `yaml:"rules" json:"rules"`
}
