package rules

import (
	"path/filepath"
	"regexp"
	"strings"

	"guardian/internal/source"
)

// Compiled is a validated rule with its regular expressions built. It is
// shared read-only by every worker.
type Compiled struct {
	Rule
	Patterns   []CompiledPattern
	Exemptions []CompiledExemption

	languages map[string]bool
	include   []*regexp.Regexp
	exclude   []*regexp.Regexp
}

type CompiledPattern struct {
	Pattern
	Index int
	// NeedleRe folds case for insensitive literals; its offsets index the
	// original line, so spans stay byte-accurate for any script.
	Needle       string
	NeedleRe     *regexp.Regexp
	Re           *regexp.Regexp
	CalleeRe     *regexp.Regexp
	GrantRe      *regexp.Regexp
	TargetRe     *regexp.Regexp
	ValueRe      *regexp.Regexp
	ShapeTree    *CompiledShape
	ArgKindSet   map[source.ArgKind]bool
	ValueKindSet map[source.ArgKind]bool

	languages map[string]bool
}

type CompiledShape struct {
	Kind     ShapeKind
	Path     *regexp.Regexp
	Field    *regexp.Regexp
	Value    *regexp.Regexp
	Ops      map[string]bool
	Operands []*CompiledShape
}

type CompiledExemption struct {
	Exemption
	PatternRe *regexp.Regexp
	ValueRe   *regexp.Regexp
}

// compile assumes r passed ValidateRule.
func compile(r Rule) *Compiled {
	c := &Compiled{Rule: r, languages: languageSet(r.Languages)}
	for i, p := range r.Patterns {
		cp := CompiledPattern{
			Pattern:      p,
			Index:        i,
			Needle:       p.Literal,
			Re:           optionalRegex(p.Regex),
			CalleeRe:     optionalRegex(p.Callee),
			GrantRe:      optionalRegex(p.GrantCallee),
			TargetRe:     optionalRegex(p.Target),
			ValueRe:      optionalRegex(p.ValueRegex),
			ArgKindSet:   kindSet(p.ArgKinds),
			ValueKindSet: kindSet(p.ValueKinds),
			languages:    languageSet(p.Languages),
		}
		if !p.CaseSensitive && p.Literal != "" {
			cp.NeedleRe = regexp.MustCompile("(?i)" + regexp.QuoteMeta(p.Literal))
		}
		if p.Shape != nil {
			cp.ShapeTree = compileShape(*p.Shape)
		}
		c.Patterns = append(c.Patterns, cp)
	}
	for _, ex := range r.Exemptions {
		c.Exemptions = append(c.Exemptions, CompiledExemption{
			Exemption: ex,
			PatternRe: optionalRegex(ex.Pattern),
			ValueRe:   optionalRegex(ex.Value),
		})
	}
	for _, glob := range r.Scope.IncludeGlobs {
		c.include = append(c.include, regexp.MustCompile(globToRegex(glob)))
	}
	for _, glob := range r.Scope.ExcludeGlobs {
		c.exclude = append(c.exclude, regexp.MustCompile(globToRegex(glob)))
	}
	return c
}

func compileShape(s Shape) *CompiledShape {
	cs := &CompiledShape{
		Kind:  s.Kind,
		Path:  optionalRegex(s.Path),
		Field: optionalRegex(s.Field),
		Value: optionalRegex(s.Value),
	}
	if len(s.Ops) > 0 {
		cs.Ops = make(map[string]bool, len(s.Ops))
		for _, op := range s.Ops {
			cs.Ops[op] = true
		}
	}
	for _, o := range s.Operands {
		cs.Operands = append(cs.Operands, compileShape(o))
	}
	return cs
}

func optionalRegex(expr string) *regexp.Regexp {
	if expr == "" {
		return nil
	}
	return regexp.MustCompile(expr)
}

func kindSet(kinds []source.ArgKind) map[source.ArgKind]bool {
	if len(kinds) == 0 {
		return nil
	}
	out := make(map[source.ArgKind]bool, len(kinds))
	for _, k := range kinds {
		out[k] = true
	}
	return out
}

func languageSet(langs []string) map[string]bool {
	if len(langs) == 0 {
		return nil
	}
	out := make(map[string]bool, len(langs))
	for _, l := range langs {
		out[l] = true
	}
	return out
}

// AppliesTo reports whether the rule should run against a unit of the
// given language and path. A rule applies when its own language tags and
// any one descriptor admit the language.
func (c *Compiled) AppliesTo(lang, path string) bool {
	if c.languages != nil && !c.languages[lang] {
		return false
	}
	if !c.scopeAllows(path) {
		return false
	}
	for i := range c.Patterns {
		if c.Patterns[i].Admits(lang) {
			return true
		}
	}
	return false
}

// Admits reports whether the descriptor's language tags include lang. An
// untagged descriptor admits every language.
func (p *CompiledPattern) Admits(lang string) bool {
	return p.languages == nil || p.languages[lang]
}

func (c *Compiled) scopeAllows(path string) bool {
	path = filepath.ToSlash(strings.TrimSpace(path))
	if len(c.include) > 0 {
		matched := false
		for _, re := range c.include {
			if re.MatchString(path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range c.exclude {
		if re.MatchString(path) {
			return false
		}
	}
	return true
}

// globToRegex converts a doublestar glob to an anchored regular expression.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	r := []rune(filepath.ToSlash(glob))
	for i := 0; i < len(r); i++ {
		switch r[i] {
		case '*':
			if i+1 < len(r) && r[i+1] == '*' {
				if i+2 < len(r) && r[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteString("\\")
			b.WriteRune(r[i])
		default:
			b.WriteRune(r[i])
		}
	}
	b.WriteString("$")
	return b.String()
}
