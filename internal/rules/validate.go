package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"guardian/internal/model"
	"guardian/internal/source"
)

var idPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*(-[A-Z0-9]+){1,3}$`)

var compareOperators = map[string]bool{
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true, "in": true, "not in": true,
}

// ValidationError names the rule that failed to load and every problem
// found in it.
type ValidationError struct {
	RuleID   string
	Problems []string
}

func (e *ValidationError) Error() string {
	id := e.RuleID
	if id == "" {
		id = "(missing id)"
	}
	return fmt.Sprintf("invalid rule %s: %s", id, strings.Join(e.Problems, "; "))
}

// ValidateRule checks one normalized rule in isolation.
func ValidateRule(r Rule) error {
	var errs []string

	if r.ID == "" {
		errs = append(errs, "id is required")
	} else if !idPattern.MatchString(r.ID) {
		errs = append(errs, "id must look like CF-001 or SUP-CFG-004")
	}
	if strings.TrimSpace(r.Title) == "" {
		errs = append(errs, "title is required")
	}
	if !r.Category.Valid() {
		errs = append(errs, fmt.Sprintf("category %q is not one of %s", r.Category, joinCategories()))
	}
	if !r.Severity.Valid() {
		errs = append(errs, "severity must be critical|high|medium|low")
	}
	switch r.Status {
	case StatusDraft, StatusEnabled, StatusDisabled:
	default:
		errs = append(errs, "status must be draft|enabled|disabled")
	}
	switch r.Source {
	case SourceBuiltin, SourceCustom:
	default:
		errs = append(errs, "source must be builtin|custom")
	}
	errs = append(errs, validateLanguages("languages", r.Languages)...)

	if len(r.Patterns) == 0 {
		errs = append(errs, "patterns must contain at least one descriptor")
	}
	for i, p := range r.Patterns {
		errs = append(errs, validatePattern(fmt.Sprintf("patterns[%d]", i), p)...)
	}
	for i, ex := range r.Exemptions {
		errs = append(errs, validateExemption(fmt.Sprintf("exemptions[%d]", i), ex)...)
	}
	for _, glob := range append(append([]string{}, r.Scope.IncludeGlobs...), r.Scope.ExcludeGlobs...) {
		if _, err := regexp.Compile(globToRegex(glob)); err != nil {
			errs = append(errs, fmt.Sprintf("scope glob %q is invalid", glob))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{RuleID: r.ID, Problems: errs}
	}
	return nil
}

func validatePattern(prefix string, p Pattern) []string {
	var errs []string
	errs = append(errs, validateLanguages(prefix+".languages", p.Languages)...)
	errs = append(errs, validateRegex(prefix+".regex", p.Regex)...)
	if p.MaxMatches < 0 {
		errs = append(errs, prefix+".max_matches must be >= 0")
	}

	switch p.Mode {
	case model.ModeLiteralSubstring:
		if strings.TrimSpace(p.Literal) == "" {
			errs = append(errs, prefix+".literal is required for literal_substring")
		}
	case model.ModeRawLineRegex:
		if p.Regex == "" {
			errs = append(errs, prefix+".regex is required for raw_line_regex")
		}
	case model.ModeArgumentRegex:
		if p.Callee == "" {
			errs = append(errs, prefix+".callee is required for argument_regex")
		}
		errs = append(errs, validateRegex(prefix+".callee", p.Callee)...)
		if p.Arg < AnyArg {
			errs = append(errs, prefix+".arg must be an index >= 0 or -1 for any argument")
		}
		errs = append(errs, validateKinds(prefix+".arg_kinds", p.ArgKinds)...)
	case model.ModeStructuralPredicate:
		switch p.Site {
		case SiteConditional:
			if p.Shape == nil {
				errs = append(errs, prefix+".shape is required for conditional sites")
			} else {
				errs = append(errs, validateShape(prefix+".shape", *p.Shape)...)
			}
			errs = append(errs, validateRegex(prefix+".grant_callee", p.GrantCallee)...)
		case SiteAssignment:
			if p.Target == "" {
				errs = append(errs, prefix+".target is required for assignment sites")
			}
			errs = append(errs, validateRegex(prefix+".target", p.Target)...)
			errs = append(errs, validateRegex(prefix+".value_regex", p.ValueRegex)...)
			errs = append(errs, validateKinds(prefix+".value_kinds", p.ValueKinds)...)
			if p.MinValueLen < 0 {
				errs = append(errs, prefix+".min_value_len must be >= 0")
			}
		default:
			errs = append(errs, prefix+".site must be conditional|assignment")
		}
	default:
		errs = append(errs, prefix+".mode must be literal_substring|raw_line_regex|argument_regex|structural_predicate")
	}
	return errs
}

func validateShape(prefix string, s Shape) []string {
	var errs []string
	errs = append(errs, validateRegex(prefix+".path", s.Path)...)
	errs = append(errs, validateRegex(prefix+".field", s.Field)...)
	errs = append(errs, validateRegex(prefix+".value", s.Value)...)
	switch s.Kind {
	case ShapeAnd, ShapeOr:
		if len(s.Operands) < 2 {
			errs = append(errs, fmt.Sprintf("%s: %s needs at least two operands", prefix, s.Kind))
		}
	case ShapeNot:
		if len(s.Operands) != 1 {
			errs = append(errs, prefix+": not needs exactly one operand")
		}
	case ShapeCompare:
		for _, op := range s.Ops {
			if !compareOperators[op] {
				errs = append(errs, fmt.Sprintf("%s: unknown comparison operator %q", prefix, op))
			}
		}
		if len(s.Operands) > 0 {
			errs = append(errs, prefix+": compare takes no operands")
		}
	case ShapeCall, ShapeAny:
		if len(s.Operands) > 0 {
			errs = append(errs, fmt.Sprintf("%s: %s takes no operands", prefix, s.Kind))
		}
	default:
		errs = append(errs, prefix+".kind must be and|or|not|compare|call|any")
	}
	for i, o := range s.Operands {
		errs = append(errs, validateShape(fmt.Sprintf("%s.operands[%d]", prefix, i), o)...)
	}
	return errs
}

func validateExemption(prefix string, ex Exemption) []string {
	var errs []string
	switch ex.Effect {
	case EffectFull, EffectPartial:
	default:
		errs = append(errs, prefix+".effect must be full|partial")
	}
	errs = append(errs, validateRegex(prefix+".pattern", ex.Pattern)...)
	errs = append(errs, validateRegex(prefix+".value", ex.Value)...)
	if ex.Window < 0 {
		errs = append(errs, prefix+".window must be >= 0")
	}
	switch ex.Kind {
	case ExemptMatchText, ExemptLineText, ExemptPath, ExemptPrecedingCall, ExemptSameCallArgument,
		ExemptNearbyAssignment, ExemptScopeLacks:
		if ex.Pattern == "" {
			errs = append(errs, fmt.Sprintf("%s.pattern is required for %s", prefix, ex.Kind))
		}
	case ExemptPlaceholder:
	case ExemptJWTClaim:
		if ex.Claim == "" || ex.Value == "" {
			errs = append(errs, prefix+".claim and .value are required for jwt_claim")
		}
	default:
		errs = append(errs, fmt.Sprintf("%s.kind %q is unknown", prefix, ex.Kind))
	}
	return errs
}

func validateRegex(field, expr string) []string {
	if expr == "" {
		return nil
	}
	if _, err := regexp.Compile(expr); err != nil {
		return []string{fmt.Sprintf("%s must compile as regex: %v", field, err)}
	}
	return nil
}

func validateLanguages(field string, langs []string) []string {
	var errs []string
	for _, lang := range langs {
		if _, ok := source.LanguageByName(lang); !ok {
			errs = append(errs, fmt.Sprintf("%s: unknown language %q", field, lang))
		}
	}
	return errs
}

func validateKinds(field string, kinds []source.ArgKind) []string {
	var errs []string
	for _, k := range kinds {
		known := false
		for _, want := range source.KnownKinds {
			if k == want {
				known = true
				break
			}
		}
		if !known {
			errs = append(errs, fmt.Sprintf("%s: unknown kind %q", field, k))
		}
	}
	return errs
}

func joinCategories() string {
	names := make([]string, 0, len(model.Categories))
	for _, c := range model.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, "|")
}

// NormalizeRule trims and defaults a rule before validation.
func NormalizeRule(r Rule) Rule {
	r.ID = strings.ToUpper(strings.TrimSpace(r.ID))
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Remediation = strings.TrimSpace(r.Remediation)
	r.CWE = strings.ToUpper(strings.TrimSpace(r.CWE))
	if c, err := model.ParseCategory(string(r.Category)); err == nil {
		r.Category = c
	}
	if s, err := model.ParseSeverity(string(r.Severity)); err == nil {
		r.Severity = s
	}

	status := strings.ToLower(strings.TrimSpace(string(r.Status)))
	if status == "" {
		r.Status = StatusEnabled
	} else {
		r.Status = Status(status)
	}
	src := strings.ToLower(strings.TrimSpace(string(r.Source)))
	if src == "" {
		r.Source = SourceCustom
	} else {
		r.Source = Source(src)
	}

	r.Languages = normalizeLanguages(r.Languages)
	patterns := make([]Pattern, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		p.Mode = model.MatchMode(strings.ToLower(strings.TrimSpace(string(p.Mode))))
		p.Site = Site(strings.ToLower(strings.TrimSpace(string(p.Site))))
		p.Languages = normalizeLanguages(p.Languages)
		patterns = append(patterns, p)
	}
	r.Patterns = patterns

	exemptions := make([]Exemption, 0, len(r.Exemptions))
	for _, ex := range r.Exemptions {
		ex.Kind = ExemptionKind(strings.ToLower(strings.TrimSpace(string(ex.Kind))))
		ex.Effect = Effect(strings.ToLower(strings.TrimSpace(string(ex.Effect))))
		ex.Reason = strings.TrimSpace(ex.Reason)
		exemptions = append(exemptions, ex)
	}
	r.Exemptions = exemptions

	r.Scope.IncludeGlobs = sanitizeGlobs(r.Scope.IncludeGlobs)
	r.Scope.ExcludeGlobs = sanitizeGlobs(r.Scope.ExcludeGlobs)
	return r
}

func normalizeLanguages(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, lang := range in {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang != "" {
			out = append(out, lang)
		}
	}
	sort.Strings(out)
	return out
}

func sanitizeGlobs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
