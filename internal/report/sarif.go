package report

import (
	"strings"

	"guardian/internal/model"
)

// SARIF v2.1.0 types, the subset GitHub code scanning reads.

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Results     []sarifResult     `json:"results"`
	Properties  map[string]any    `json:"properties,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri,omitempty"`
	Version        string      `json:"version,omitempty"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name,omitempty"`
	ShortDescription sarifMessage        `json:"shortDescription"`
	FullDescription  *sarifMessage       `json:"fullDescription,omitempty"`
	Help             *sarifMessage       `json:"help,omitempty"`
	DefaultConfig    *sarifDefaultConfig `json:"defaultConfiguration,omitempty"`
	Properties       *sarifRuleProps     `json:"properties,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifRuleProps struct {
	Tags             []string `json:"tags,omitempty"`
	SecuritySeverity string   `json:"security-severity,omitempty"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool                `json:"executionSuccessful"`
	Notifications       []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifResult struct {
	RuleID     string           `json:"ruleId"`
	RuleIndex  int              `json:"ruleIndex"`
	Level      string           `json:"level"`
	Message    sarifMessage     `json:"message"`
	Locations  []sarifLocation  `json:"locations"`
	Properties *sarifProperties `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int           `json:"startLine"`
	StartColumn int           `json:"startColumn,omitempty"`
	EndLine     int           `json:"endLine,omitempty"`
	EndColumn   int           `json:"endColumn,omitempty"`
	Snippet     *sarifMessage `json:"snippet,omitempty"`
}

type sarifProperties struct {
	Severity   model.Severity `json:"severity"`
	Category   model.Category `json:"category"`
	Confidence float64        `json:"confidence"`
	Mode       string         `json:"mode,omitempty"`
	Demotions  int            `json:"demotions,omitempty"`
}

func buildSARIF(env Envelope) sarifLog {
	res := env.Result
	ruleIndex := map[string]int{}
	rules := []sarifRule{}
	results := make([]sarifResult, 0, len(res.Findings))

	for _, f := range res.Findings {
		idx, seen := ruleIndex[f.RuleID]
		if !seen {
			idx = len(rules)
			ruleIndex[f.RuleID] = idx
			rules = append(rules, ruleDescriptor(f))
		}

		message := f.Title
		if f.Description != "" {
			message += ": " + f.Description
		}
		results = append(results, sarifResult{
			RuleID:    f.RuleID,
			RuleIndex: idx,
			Level:     mapSeverityToSARIF(f.Severity),
			Message:   sarifMessage{Text: message},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: f.Path},
					Region: &sarifRegion{
						StartLine:   f.Line,
						StartColumn: f.Column,
						EndLine:     f.EndLine,
						EndColumn:   f.EndColumn,
						Snippet:     snippetMessage(f.Snippet),
					},
				},
			}},
			Properties: &sarifProperties{
				Severity:   f.Severity,
				Category:   f.Category,
				Confidence: f.Confidence,
				Mode:       string(f.Mode),
				Demotions:  f.Demotions,
			},
		})
	}

	invocation := sarifInvocation{ExecutionSuccessful: len(res.Errored()) == 0}
	for _, d := range res.Diagnostics {
		level := "note"
		if d.Kind == model.DiagnosticErrored {
			level = "error"
		}
		msg := string(d.Kind) + ": " + d.Message
		if d.RuleID != "" {
			msg = string(d.Kind) + " [" + d.RuleID + "]: " + d.Message
		}
		invocation.Notifications = append(invocation.Notifications, sarifNotification{
			Level:   level,
			Message: sarifMessage{Text: msg},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{ArtifactLocation: sarifArtifactLocation{URI: d.Path}},
			}},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:    ToolName,
					Version: env.Version,
					Rules:   rules,
				},
			},
			Invocations: []sarifInvocation{invocation},
			Results:     results,
			Properties: map[string]any{
				"run_id":        env.RunID,
				"files_scanned": res.FilesScanned,
				"suppressed":    len(res.Suppressed),
			},
		}},
	}
}

func ruleDescriptor(f model.Finding) sarifRule {
	r := sarifRule{
		ID:               f.RuleID,
		Name:             f.Title,
		ShortDescription: sarifMessage{Text: f.Title},
		DefaultConfig:    &sarifDefaultConfig{Level: mapSeverityToSARIF(f.Severity)},
		Properties: &sarifRuleProps{
			Tags:             []string{"security", string(f.Category)},
			SecuritySeverity: securitySeverity(f.Severity),
		},
	}
	if f.Description != "" {
		r.FullDescription = &sarifMessage{Text: f.Description}
	}
	if f.Remediation != "" {
		r.Help = &sarifMessage{Text: f.Remediation}
	}
	if f.CWE != "" {
		r.Properties.Tags = append(r.Properties.Tags, "external/cwe/"+strings.ToLower(f.CWE))
	}
	return r
}

func snippetMessage(s string) *sarifMessage {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &sarifMessage{Text: s}
}

func mapSeverityToSARIF(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical, model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// securitySeverity maps tiers onto the CVSS-like scores GitHub uses to
// bucket alerts.
func securitySeverity(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical:
		return "9.5"
	case model.SeverityHigh:
		return "8.0"
	case model.SeverityMedium:
		return "5.5"
	default:
		return "3.0"
	}
}
