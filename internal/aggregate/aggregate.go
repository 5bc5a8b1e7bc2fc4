package aggregate

import (
	"fmt"
	"sort"

	"guardian/internal/model"
	"guardian/internal/suppress"
)

type dedupKey struct {
	path     string
	span     model.Span
	category model.Category
}

// Merge folds per-file results into one ScanResult. Findings sharing a
// (path, span, category) key collapse to the most severe, then most
// confident, then lowest rule id; the others are kept as suppressed with
// source "dedup". Output order depends only on the input set.
func Merge(results ...model.FileResult) model.ScanResult {
	out := model.ScanResult{
		Findings:    []model.Finding{},
		Suppressed:  []model.Suppressed{},
		Diagnostics: []model.Diagnostic{},
	}

	groups := make(map[dedupKey][]model.Finding)
	var order []dedupKey
	for _, fr := range results {
		out.FilesScanned++
		out.Suppressed = append(out.Suppressed, fr.Suppressed...)
		out.Diagnostics = append(out.Diagnostics, fr.Diagnostics...)
		for _, f := range fr.Findings {
			key := dedupKey{path: f.Path, span: f.Span, category: f.Category}
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], f)
		}
	}

	for _, key := range order {
		group := groups[key]
		winner := 0
		for i := 1; i < len(group); i++ {
			if preferred(group[i], group[winner]) {
				winner = i
			}
		}
		out.Findings = append(out.Findings, group[winner])
		for i, f := range group {
			if i != winner {
				out.Suppressed = append(out.Suppressed, dedupLoser(f, group[winner]))
			}
		}
	}

	sortFindings(out.Findings)
	sortSuppressed(out.Suppressed)
	sortDiagnostics(out.Diagnostics)
	out.CountsByCategory, out.CountsBySeverity = counts(out.Findings)
	return out
}

// preferred reports whether a should replace b as the kept finding.
func preferred(a, b model.Finding) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.RuleID < b.RuleID
}

func dedupLoser(loser, winner model.Finding) model.Suppressed {
	return model.Suppressed{
		RuleID:   loser.RuleID,
		Category: loser.Category,
		Severity: loser.Severity,
		Path:     loser.Path,
		Line:     loser.Line,
		Column:   loser.Column,
		Span:     loser.Span,
		Reason:   fmt.Sprintf("duplicate of %s at the same location", winner.RuleID),
		Source:   suppress.SourceDedup,
	}
}

// Filter keeps findings at or above minSeverity in the given categories
// (all when empty) and recomputes the counts. Suppressed entries and
// diagnostics are carried over unchanged.
func Filter(res model.ScanResult, minSeverity model.Severity, categories []model.Category) model.ScanResult {
	catSet := make(map[model.Category]bool, len(categories))
	for _, c := range categories {
		catSet[c] = true
	}
	out := res
	out.Findings = make([]model.Finding, 0, len(res.Findings))
	for _, f := range res.Findings {
		if minSeverity != "" && !f.Severity.AtLeast(minSeverity) {
			continue
		}
		if len(catSet) > 0 && !catSet[f.Category] {
			continue
		}
		out.Findings = append(out.Findings, f)
	}
	out.CountsByCategory, out.CountsBySeverity = counts(out.Findings)
	return out
}

// MaxSeverity returns the most severe finding in res, if any.
func MaxSeverity(res model.ScanResult) (model.Severity, bool) {
	return res.MaxSeverity()
}

// MeetsThreshold reports whether any finding is at least as severe as
// threshold.
func MeetsThreshold(res model.ScanResult, threshold model.Severity) bool {
	max, ok := res.MaxSeverity()
	return ok && max.AtLeast(threshold)
}

func counts(findings []model.Finding) (map[model.Category]int, map[model.Severity]int) {
	byCat := make(map[model.Category]int, len(model.Categories))
	bySev := make(map[model.Severity]int, len(model.Severities))
	for _, c := range model.Categories {
		byCat[c] = 0
	}
	for _, s := range model.Severities {
		bySev[s] = 0
	}
	for _, f := range findings {
		byCat[f.Category]++
		bySev[f.Severity]++
	}
	return byCat, bySev
}

func sortFindings(fs []model.Finding) {
	sort.Slice(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Span.End < b.Span.End
	})
}

func sortSuppressed(ss []model.Suppressed) {
	sort.Slice(ss, func(i, j int) bool {
		a, b := ss[i], ss[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.Span != b.Span {
			return a.Span.End < b.Span.End
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Reason < b.Reason
	})
}

func sortDiagnostics(ds []model.Diagnostic) {
	sort.Slice(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Message < b.Message
	})
}
