package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"guardian/internal/model"
	"guardian/internal/redact"
	"guardian/internal/safefile"
)

const ToolName = "guardian"

type Format string

const (
	FormatHuman    Format = "human"
	FormatJSON     Format = "json"
	FormatSARIF    Format = "sarif"
	FormatMarkdown Format = "markdown"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatHuman, FormatJSON, FormatSARIF, FormatMarkdown:
		return f, nil
	case "text", "":
		return FormatHuman, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q (want human, json, sarif or markdown)", raw)
	}
}

// Envelope wraps a scan result with run metadata. The run id lives here and
// in progress events only; the engine result carries no identity.
type Envelope struct {
	RunID       string           `json:"run_id"`
	Tool        string           `json:"tool"`
	Version     string           `json:"version"`
	GeneratedAt time.Time        `json:"generated_at"`
	DurationMS  int64            `json:"duration_ms"`
	Rules       int              `json:"rules"`
	Result      model.ScanResult `json:"result"`
}

type Meta struct {
	RunID    string
	Version  string
	Started  time.Time
	Finished time.Time
	Rules    int
}

func NewRunID() string {
	return uuid.NewString()
}

func NewEnvelope(res model.ScanResult, meta Meta) Envelope {
	if meta.RunID == "" {
		meta.RunID = NewRunID()
	}
	if meta.Finished.IsZero() {
		meta.Finished = time.Now().UTC()
	}
	var duration int64
	if !meta.Started.IsZero() {
		duration = meta.Finished.Sub(meta.Started).Milliseconds()
	}
	return Envelope{
		RunID:       meta.RunID,
		Tool:        ToolName,
		Version:     meta.Version,
		GeneratedAt: meta.Finished.UTC(),
		DurationMS:  duration,
		Rules:       meta.Rules,
		Result:      redactResult(res),
	}
}

type RenderOptions struct {
	Color   bool
	Verbose bool
}

// Render writes env to w in the requested format.
func Render(w io.Writer, format Format, env Envelope, opts RenderOptions) error {
	var out []byte
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal scan report: %w", err)
		}
		out = append(b, '\n')
	case FormatSARIF:
		b, err := json.MarshalIndent(buildSARIF(env), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal sarif report: %w", err)
		}
		out = append(b, '\n')
	case FormatMarkdown:
		out = []byte(RenderMarkdown(env))
	case FormatHuman, "":
		if opts.Color {
			out = []byte(FormatHumanColorized(env.Result, opts.Verbose))
		} else {
			out = []byte(HumanText(env.Result))
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	_, err := w.Write(out)
	return err
}

// WriteFile renders env and replaces path atomically.
func WriteFile(path string, format Format, env Envelope, opts RenderOptions) error {
	var buf bytes.Buffer
	opts.Color = false
	if err := Render(&buf, format, env, opts); err != nil {
		return err
	}
	if _, err := safefile.EnsureDir(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write %s report: %w", format, err)
	}
	return nil
}

func redactResult(in model.ScanResult) model.ScanResult {
	if len(in.Findings) > 0 {
		findings := make([]model.Finding, 0, len(in.Findings))
		for _, f := range in.Findings {
			f.Snippet = redact.Text(f.Snippet)
			f.Notes = redact.Strings(f.Notes)
			findings = append(findings, f)
		}
		in.Findings = findings
	}
	if len(in.Diagnostics) > 0 {
		diags := make([]model.Diagnostic, 0, len(in.Diagnostics))
		for _, d := range in.Diagnostics {
			d.Message = redact.Text(d.Message)
			diags = append(diags, d)
		}
		in.Diagnostics = diags
	}
	return in
}

func sanitizeInline(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func location(f model.Finding) string {
	return fmt.Sprintf("%s:%d:%d", f.Path, f.Line, f.Column)
}
