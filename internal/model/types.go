package model

type Category string

const (
	CategoryCryptoFailure       Category = "crypto_failure"
	CategoryAuthFailure         Category = "auth_failure"
	CategoryBrokenAccessControl Category = "broken_access_control"
	CategoryInjection           Category = "injection"
	CategoryExposedSecret       Category = "exposed_secret"
	CategoryBaaSMisconfig       Category = "baas_misconfig"
	CategoryInsecureRandomness  Category = "insecure_randomness"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryCryptoFailure,
	CategoryAuthFailure,
	CategoryBrokenAccessControl,
	CategoryInjection,
	CategoryExposedSecret,
	CategoryBaaSMisconfig,
	CategoryInsecureRandomness,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type MatchMode string

const (
	ModeLiteralSubstring    MatchMode = "literal_substring"
	ModeRawLineRegex        MatchMode = "raw_line_regex"
	ModeArgumentRegex       MatchMode = "argument_regex"
	ModeStructuralPredicate MatchMode = "structural_predicate"
)

func (m MatchMode) Valid() bool {
	switch m {
	case ModeLiteralSubstring, ModeRawLineRegex, ModeArgumentRegex, ModeStructuralPredicate:
		return true
	default:
		return false
	}
}

// Span is a half-open byte range [Start, End) into a unit's raw text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int { return s.End - s.Start }

func (s Span) Contains(offset int) bool { return offset >= s.Start && offset < s.End }

// RawMatch is an unfiltered pattern hit produced by the matcher.
type RawMatch struct {
	RuleID     string    `json:"rule_id"`
	Span       Span      `json:"span"`
	Text       string    `json:"text"`
	Groups     []string  `json:"groups,omitempty"`
	Mode       MatchMode `json:"mode"`
	Descriptor int       `json:"descriptor"`
	// Site is the index of the call, assignment or conditional site the
	// match came from, or -1 for raw-text modes.
	Site int `json:"site"`
}

type Finding struct {
	RuleID      string    `json:"rule_id"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Path        string    `json:"path"`
	Line        int       `json:"line"`
	Column      int       `json:"column"`
	EndLine     int       `json:"end_line"`
	EndColumn   int       `json:"end_column"`
	Span        Span      `json:"span"`
	Snippet     string    `json:"snippet"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Remediation string    `json:"remediation,omitempty"`
	CWE         string    `json:"cwe,omitempty"`
	Mode        MatchMode `json:"mode"`
	Demotions   int       `json:"demotions,omitempty"`
	Notes       []string  `json:"notes,omitempty"`
}

// Suppressed is a match that was dropped by an exemption, an annotation, a
// suppression file rule or deduplication. It is kept for audit.
type Suppressed struct {
	RuleID   string   `json:"rule_id"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Path     string   `json:"path"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Span     Span     `json:"span"`
	Reason   string   `json:"reason"`
	Source   string   `json:"source"`
}

type DiagnosticKind string

const (
	DiagnosticErrored DiagnosticKind = "errored"
	DiagnosticSkipped DiagnosticKind = "skipped"
)

type Diagnostic struct {
	Path    string         `json:"path"`
	Kind    DiagnosticKind `json:"kind"`
	RuleID  string         `json:"rule_id,omitempty"`
	Message string         `json:"message"`
}

// FileResult is the per-file output of the scan pipeline, merged once by the
// aggregator.
type FileResult struct {
	Path        string       `json:"path"`
	Findings    []Finding    `json:"findings"`
	Suppressed  []Suppressed `json:"suppressed,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

type ScanResult struct {
	Findings         []Finding        `json:"findings"`
	Suppressed       []Suppressed     `json:"suppressed,omitempty"`
	CountsByCategory map[Category]int `json:"counts_by_category"`
	CountsBySeverity map[Severity]int `json:"counts_by_severity"`
	Diagnostics      []Diagnostic     `json:"diagnostics,omitempty"`
	FilesScanned     int              `json:"files_scanned"`
}

// MaxSeverity returns the most severe finding severity and false when there
// are no findings.
func (r ScanResult) MaxSeverity() (Severity, bool) {
	if len(r.Findings) == 0 {
		return "", false
	}
	max := r.Findings[0].Severity
	for _, f := range r.Findings[1:] {
		if f.Severity.Rank() > max.Rank() {
			max = f.Severity
		}
	}
	return max, true
}

func (r ScanResult) Errored() []Diagnostic {
	return r.diagnosticsOf(DiagnosticErrored)
}

func (r ScanResult) Skipped() []Diagnostic {
	return r.diagnosticsOf(DiagnosticSkipped)
}

func (r ScanResult) diagnosticsOf(kind DiagnosticKind) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
