package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"guardian/internal/model"
)

// HumanText formats a scan result as plain text in report order.
func HumanText(res model.ScanResult) string {
	var b strings.Builder
	if len(res.Findings) == 0 {
		b.WriteString("No findings.\n")
	}
	for _, f := range res.Findings {
		b.WriteString(fmt.Sprintf("[%-8s] %s (%s)\n", strings.ToUpper(string(f.Severity)), f.Title, f.RuleID))
		b.WriteString(fmt.Sprintf("  %s  confidence=%.2f\n", location(f), f.Confidence))
		if snippet := truncate(f.Snippet, 160); snippet != "" {
			b.WriteString(fmt.Sprintf("  snippet: %s\n", snippet))
		}
		if len(f.Notes) > 0 {
			b.WriteString(fmt.Sprintf("  demoted: %s\n", strings.Join(f.Notes, "; ")))
		}
		if rem := truncate(f.Remediation, 200); rem != "" {
			b.WriteString(fmt.Sprintf("  remediation: %s\n", rem))
		}
		b.WriteString("\n")
	}
	writeDiagnostics(&b, res, nil)
	b.WriteString(summaryLine(res))
	return b.String()
}

var (
	styleCritical    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9"))
	styleHigh        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	styleMedium      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	styleLow         = lipgloss.NewStyle().Faint(true)
	styleFileRef     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleRemediation = lipgloss.NewStyle().Faint(true)
	styleDiagnostic  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func styleSeverity(sev model.Severity) string {
	label := fmt.Sprintf("%-8s", strings.ToUpper(string(sev)))
	switch sev {
	case model.SeverityCritical:
		return styleCritical.Render(label)
	case model.SeverityHigh:
		return styleHigh.Render(label)
	case model.SeverityMedium:
		return styleMedium.Render(label)
	case model.SeverityLow:
		return styleLow.Render(label)
	default:
		return label
	}
}

// FormatHumanColorized groups findings by severity, most severe first, for
// an interactive terminal. Snippets are shown only when verbose is set.
func FormatHumanColorized(res model.ScanResult, verbose bool) string {
	var b strings.Builder
	b.WriteString(headerLine(res))
	if len(res.Findings) == 0 {
		writeDiagnostics(&b, res, &styleDiagnostic)
		return b.String()
	}
	b.WriteString("\n")

	sorted := make([]model.Finding, len(res.Findings))
	copy(sorted, res.Findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})

	for _, f := range sorted {
		b.WriteString(fmt.Sprintf("  %s %s %s\n", styleSeverity(f.Severity), f.Title, styleLow.Render(f.RuleID)))
		b.WriteString(fmt.Sprintf("    %s\n", styleFileRef.Render(location(f))))
		if verbose {
			if snippet := truncate(f.Snippet, 160); snippet != "" {
				b.WriteString(fmt.Sprintf("    %s\n", snippet))
			}
			if len(f.Notes) > 0 {
				b.WriteString(fmt.Sprintf("    demoted: %s\n", strings.Join(f.Notes, "; ")))
			}
		}
		if rem := truncate(f.Remediation, 200); rem != "" {
			b.WriteString(fmt.Sprintf("    %s\n", styleRemediation.Render("→ "+rem)))
		}
		b.WriteString("\n")
	}
	writeDiagnostics(&b, res, &styleDiagnostic)
	return b.String()
}

func headerLine(res model.ScanResult) string {
	var parts []string
	for _, sev := range model.Severities {
		if n := res.CountsBySeverity[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	line := fmt.Sprintf("guardian scan complete: %d findings", len(res.Findings))
	if len(parts) > 0 {
		line += " (" + strings.Join(parts, ", ") + ")"
	}
	return line + fmt.Sprintf(" in %d files, %d suppressed\n", res.FilesScanned, len(res.Suppressed))
}

func summaryLine(res model.ScanResult) string {
	return fmt.Sprintf("%d finding(s) detected, %d suppressed, %d file(s) scanned.\n",
		len(res.Findings), len(res.Suppressed), res.FilesScanned)
}

func writeDiagnostics(b *strings.Builder, res model.ScanResult, style *lipgloss.Style) {
	if len(res.Diagnostics) == 0 {
		return
	}
	title := fmt.Sprintf("%d file diagnostic(s):", len(res.Diagnostics))
	if style != nil {
		title = style.Render(title)
	}
	b.WriteString(title + "\n")
	for _, d := range res.Diagnostics {
		line := fmt.Sprintf("  %s %s", d.Kind, d.Path)
		if d.RuleID != "" {
			line += " [" + d.RuleID + "]"
		}
		b.WriteString(line + ": " + sanitizeInline(d.Message) + "\n")
	}
	b.WriteString("\n")
}
