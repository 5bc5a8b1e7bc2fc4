package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"guardian/internal/model"
)

// RenderMarkdown renders a report suitable for a pull request comment.
func RenderMarkdown(env Envelope) string {
	res := env.Result
	var b bytes.Buffer

	b.WriteString("# Guardian Scan Report\n\n")
	b.WriteString("## Summary\n\n")
	b.WriteString(fmt.Sprintf("- Run ID: `%s`\n", env.RunID))
	if env.Version != "" {
		b.WriteString(fmt.Sprintf("- Version: `%s`\n", sanitizeInline(env.Version)))
	}
	b.WriteString(fmt.Sprintf("- Files scanned: `%d`\n", res.FilesScanned))
	if env.Rules > 0 {
		b.WriteString(fmt.Sprintf("- Rules: `%d`\n", env.Rules))
	}
	b.WriteString(fmt.Sprintf("- Duration: `%d ms`\n", env.DurationMS))
	b.WriteString(fmt.Sprintf("- Total findings: **%d** (%d suppressed)\n", len(res.Findings), len(res.Suppressed)))
	b.WriteString(fmt.Sprintf("- Severity: critical=%d, high=%d, medium=%d, low=%d\n\n",
		res.CountsBySeverity[model.SeverityCritical],
		res.CountsBySeverity[model.SeverityHigh],
		res.CountsBySeverity[model.SeverityMedium],
		res.CountsBySeverity[model.SeverityLow],
	))

	b.WriteString("| Category | Findings |\n|---|---|\n")
	for _, c := range model.Categories {
		b.WriteString(fmt.Sprintf("| `%s` | %d |\n", c, res.CountsByCategory[c]))
	}
	b.WriteString("\n")

	if len(res.Diagnostics) > 0 {
		b.WriteString("## Diagnostics\n\n")
		for _, d := range res.Diagnostics {
			line := fmt.Sprintf("- %s `%s`", d.Kind, d.Path)
			if d.RuleID != "" {
				line += fmt.Sprintf(" (rule `%s`)", d.RuleID)
			}
			b.WriteString(line + ": " + sanitizeInline(d.Message) + "\n")
		}
		b.WriteString("\n")
	}

	if len(res.Findings) == 0 {
		b.WriteString("## Findings\n\nNo findings.\n")
		return b.String()
	}

	b.WriteString("## Findings\n\n")
	sorted := make([]model.Finding, len(res.Findings))
	copy(sorted, res.Findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})

	for _, f := range sorted {
		b.WriteString(fmt.Sprintf("### [%s] %s\n\n", strings.ToUpper(string(f.Severity)), f.Title))
		b.WriteString(fmt.Sprintf("- Rule: `%s`", f.RuleID))
		if f.CWE != "" {
			b.WriteString(fmt.Sprintf(" (%s)", f.CWE))
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("- Category: `%s`\n", f.Category))
		b.WriteString(fmt.Sprintf("- Location: `%s`\n", location(f)))
		b.WriteString(fmt.Sprintf("- Confidence: `%.2f`\n", f.Confidence))
		if len(f.Notes) > 0 {
			b.WriteString(fmt.Sprintf("- Demoted by: %s\n", sanitizeInline(strings.Join(f.Notes, "; "))))
		}
		if f.Snippet != "" {
			b.WriteString("\n```\n" + strings.ReplaceAll(f.Snippet, "```", "'''") + "\n```\n\n")
		}
		if f.Remediation != "" {
			b.WriteString("- Remediation: " + sanitizeInline(f.Remediation) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
