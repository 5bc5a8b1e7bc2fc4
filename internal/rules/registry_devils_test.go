package rules

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"guardian/internal/model"
	"guardian/internal/source"
)

// --- Concurrent readers ---

func TestRegistry_ConcurrentReads(t *testing.T) {
	reg, err := NewRegistry(Builtin())
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lang := source.LangJavaScript
			if i%2 == 0 {
				lang = source.LangPython
			}
			if len(reg.ForUnit(lang, fmt.Sprintf("src/f%d", i))) == 0 {
				t.Errorf("no rules for %s", lang)
			}
			if _, ok := reg.Get("CF-001"); !ok {
				t.Error("CF-001 missing")
			}
		}(i)
	}
	wg.Wait()
}

// --- Hostile definitions ---

func TestValidate_ReportsEveryBadRule(t *testing.T) {
	defs := []Rule{
		{},
		{ID: "X-1", Title: "t", Category: model.CategoryInjection, Severity: model.SeverityLow},
		{ID: "X-2", Title: "t", Category: model.CategoryInjection, Severity: model.SeverityLow,
			Patterns: []Pattern{{Mode: "fuzzy"}}},
	}
	errs := Validate(defs)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Error(), "(missing id)") {
		t.Fatalf("missing id not named: %v", errs[0])
	}
}

func TestValidate_DeeplyNestedShape(t *testing.T) {
	shape := Shape{Kind: ShapeAny}
	for i := 0; i < 200; i++ {
		shape = Shape{Kind: ShapeNot, Operands: []Shape{shape}}
	}
	r := Rule{
		ID: "X-3", Title: "deep", Category: model.CategoryAuthFailure, Severity: model.SeverityLow,
		Patterns: []Pattern{{Mode: model.ModeStructuralPredicate, Site: SiteConditional, Shape: &shape}},
	}
	if _, err := NewRegistry([]Rule{r}); err != nil {
		t.Fatalf("deep shape rejected: %v", err)
	}
}

func TestFilter_EmptySelectorsAreIgnored(t *testing.T) {
	reg, err := NewRegistry(Builtin())
	if err != nil {
		t.Fatal(err)
	}
	out, warnings, err := reg.Filter(Selector{OnlyIDs: []string{"", "  "}, SkipIDs: []string{""}})
	if err != nil || len(warnings) != 0 {
		t.Fatalf("Filter = %v, %v", warnings, err)
	}
	if out.Len() != reg.Len() {
		t.Fatalf("blank selectors changed the rule set: %d vs %d", out.Len(), reg.Len())
	}
}
