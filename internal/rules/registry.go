package rules

import (
	"fmt"
	"sort"
	"strings"

	"guardian/internal/model"
)

// Registry is an immutable, validated rule set. Build it once with
// NewRegistry and share it between goroutines.
type Registry struct {
	rules []*Compiled
	byID  map[string]*Compiled
}

// NewRegistry normalizes, validates and compiles defs. It returns the first
// *ValidationError in input order; duplicate ids are reported against the
// later definition.
func NewRegistry(defs []Rule) (*Registry, error) {
	if errs := Validate(defs); len(errs) > 0 {
		return nil, errs[0]
	}
	reg := &Registry{byID: make(map[string]*Compiled, len(defs))}
	for _, def := range defs {
		c := compile(NormalizeRule(def))
		reg.rules = append(reg.rules, c)
		reg.byID[c.ID] = c
	}
	sort.Slice(reg.rules, func(i, j int) bool { return reg.rules[i].ID < reg.rules[j].ID })
	return reg, nil
}

// Validate reports every invalid definition, including duplicate ids.
func Validate(defs []Rule) []*ValidationError {
	var out []*ValidationError
	seen := make(map[string]Source, len(defs))
	for _, def := range defs {
		def = NormalizeRule(def)
		if err := ValidateRule(def); err != nil {
			out = append(out, err.(*ValidationError))
			continue
		}
		if src, dup := seen[def.ID]; dup {
			out = append(out, &ValidationError{
				RuleID:   def.ID,
				Problems: []string{fmt.Sprintf("duplicate rule id (already defined by a %s rule)", src)},
			})
			continue
		}
		seen[def.ID] = def.Source
	}
	return out
}

func (r *Registry) Len() int { return len(r.rules) }

func (r *Registry) Get(id string) (*Compiled, bool) {
	c, ok := r.byID[strings.ToUpper(strings.TrimSpace(id))]
	return c, ok
}

// All returns the rules ordered by id.
func (r *Registry) All() []*Compiled {
	return append([]*Compiled(nil), r.rules...)
}

// ForLanguage returns the rules with at least one descriptor admitting lang.
func (r *Registry) ForLanguage(lang string) []*Compiled {
	var out []*Compiled
	for _, c := range r.rules {
		if c.languages != nil && !c.languages[lang] {
			continue
		}
		for i := range c.Patterns {
			if c.Patterns[i].Admits(lang) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ForUnit returns the rules to run against a file of the given language
// and path, honoring rule scope globs.
func (r *Registry) ForUnit(lang, path string) []*Compiled {
	var out []*Compiled
	for _, c := range r.rules {
		if c.AppliesTo(lang, path) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) ByCategory(cat model.Category) []*Compiled {
	var out []*Compiled
	for _, c := range r.rules {
		if c.Category == cat {
			out = append(out, c)
		}
	}
	return out
}

type Selector struct {
	OnlyIDs      []string
	SkipIDs      []string
	Categories   []model.Category
	IncludeDraft bool
}

// Filter returns a registry restricted by sel. Disabled rules never run and
// draft rules only with IncludeDraft. Unknown ids in OnlyIDs produce
// warnings, an empty selection an error.
func (r *Registry) Filter(sel Selector) (*Registry, []string, error) {
	onlySet := idSet(sel.OnlyIDs)
	skipSet := idSet(sel.SkipIDs)
	catSet := make(map[model.Category]bool, len(sel.Categories))
	for _, c := range sel.Categories {
		catSet[c] = true
	}

	var warnings []string
	usedOnly := make(map[string]bool, len(onlySet))
	out := &Registry{byID: make(map[string]*Compiled, len(r.rules))}
	for _, c := range r.rules {
		if onlySet[c.ID] {
			usedOnly[c.ID] = true
		}
		if skipSet[c.ID] || (len(onlySet) > 0 && !onlySet[c.ID]) {
			continue
		}
		if len(catSet) > 0 && !catSet[c.Category] {
			continue
		}
		if c.Status == StatusDisabled || (c.Status == StatusDraft && !sel.IncludeDraft) {
			continue
		}
		out.rules = append(out.rules, c)
		out.byID[c.ID] = c
	}

	missing := make([]string, 0)
	for id := range onlySet {
		if !usedOnly[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	for _, id := range missing {
		warnings = append(warnings, fmt.Sprintf("--only-rule requested unknown rule %q", id))
	}

	if len(out.rules) == 0 {
		return nil, warnings, fmt.Errorf("no rules selected for execution")
	}
	return out, warnings, nil
}

func idSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id != "" {
			out[id] = true
		}
	}
	return out
}
