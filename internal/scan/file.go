package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"guardian/internal/matcher"
	"guardian/internal/model"
	"guardian/internal/progress"
	"guardian/internal/redact"
	"guardian/internal/rules"
	"guardian/internal/safefile"
	"guardian/internal/score"
	"guardian/internal/source"
	"guardian/internal/suppress"
)

// scanFile runs the whole pipeline for one input. done is false when the
// file was abandoned because ctx was cancelled.
func scanFile(ctx context.Context, reg *rules.Registry, in Input, opts Options) (res model.FileResult, done bool) {
	path := filepath.ToSlash(strings.TrimSpace(in.Path))
	res = model.FileResult{Path: path, Findings: []model.Finding{}}
	if ctx.Err() != nil {
		return res, false
	}

	started := time.Now().UTC()
	opts.Sink.Emit(progress.Event{Type: progress.EventFileStarted, At: started, RunID: opts.RunID, Path: path})
	status := "scanned"
	defer func() {
		if !done {
			return
		}
		finished := time.Now().UTC()
		opts.Sink.Emit(progress.Event{
			Type:         progress.EventFileFinished,
			At:           finished,
			RunID:        opts.RunID,
			Path:         path,
			Status:       status,
			FindingCount: len(res.Findings),
			DurationMS:   finished.Sub(started).Milliseconds(),
		})
	}()

	content, err := in.content()
	var tooLarge *safefile.TooLargeError
	if errors.As(err, &tooLarge) {
		status = string(model.DiagnosticSkipped)
		res.Diagnostics = append(res.Diagnostics, diagnostic(path, model.DiagnosticSkipped, "",
			fmt.Sprintf("size %d exceeds %d bytes", tooLarge.Size, tooLarge.Limit)))
		return res, true
	}
	if err != nil {
		status = string(model.DiagnosticErrored)
		res.Diagnostics = append(res.Diagnostics, diagnostic(path, model.DiagnosticErrored, "", fmt.Sprintf("read: %v", err)))
		return res, true
	}
	if int64(len(content)) > opts.MaxFileBytes {
		status = string(model.DiagnosticSkipped)
		res.Diagnostics = append(res.Diagnostics, diagnostic(path, model.DiagnosticSkipped, "",
			fmt.Sprintf("size %d exceeds %d bytes", len(content), opts.MaxFileBytes)))
		return res, true
	}

	u, err := normalize(path, content, in.Language)
	if err != nil {
		status = string(model.DiagnosticErrored)
		res.Diagnostics = append(res.Diagnostics, diagnostic(path, model.DiagnosticErrored, "", err.Error()))
		return res, true
	}
	if u.Binary {
		status = string(model.DiagnosticSkipped)
		res.Diagnostics = append(res.Diagnostics, diagnostic(path, model.DiagnosticSkipped, "", "binary content"))
		return res, true
	}
	if u.Degraded {
		status = "degraded"
		res.Diagnostics = append(res.Diagnostics, diagnostic(path, model.DiagnosticSkipped, "",
			"structural view unavailable ("+u.DegradedReason+"); raw text rules only"))
	}

	inline, warnings := suppress.ScanInline(u)
	for _, w := range warnings {
		warn(opts.Sink, opts.RunID, w)
	}
	evalOpts := suppress.Options{FileRules: opts.FileRules, Now: opts.Now, Inline: inline}

	for _, r := range reg.ForUnit(u.Language.Name, path) {
		if ctx.Err() != nil {
			return res, false
		}
		findings, suppressed, err := runRule(ctx, u, r, evalOpts)
		if err != nil {
			if ctx.Err() != nil {
				return res, false
			}
			status = "partial"
			res.Diagnostics = append(res.Diagnostics, diagnostic(path, model.DiagnosticErrored, r.ID, err.Error()))
			continue
		}
		res.Findings = append(res.Findings, findings...)
		res.Suppressed = append(res.Suppressed, suppressed...)
	}
	return res, true
}

// normalize turns a normalizer panic into an error so one hostile file
// cannot take down the run.
func normalize(path string, content []byte, hint string) (u *source.Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			u, err = nil, fmt.Errorf("normalize: panic: %v", r)
		}
	}()
	return source.Normalize(path, content, hint), nil
}

// runRule matches one rule and routes every match to a finding or to the
// suppressed list. A panic anywhere in the rule is reported as an error
// for that rule only; partial output of the rule is discarded.
func runRule(ctx context.Context, u *source.Unit, r *rules.Compiled, opts suppress.Options) (findings []model.Finding, suppressed []model.Suppressed, err error) {
	defer func() {
		if p := recover(); p != nil {
			findings, suppressed, err = nil, nil, fmt.Errorf("panic: %v", p)
		}
	}()

	matches, err := matcher.Match(ctx, u, r)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range matches {
		v := suppress.Evaluate(u, r, m, opts)
		if v.Full {
			line, col := u.Position(m.Span.Start)
			suppressed = append(suppressed, model.Suppressed{
				RuleID:   r.ID,
				Category: r.Category,
				Severity: r.Severity,
				Path:     u.Path,
				Line:     line,
				Column:   col,
				Span:     m.Span,
				Reason:   v.Reason,
				Source:   v.Source,
			})
			continue
		}
		findings = append(findings, buildFinding(u, r, m, v))
	}
	return findings, suppressed, nil
}

func buildFinding(u *source.Unit, r *rules.Compiled, m model.RawMatch, v suppress.Verdict) model.Finding {
	line, col := u.Position(m.Span.Start)
	endLine, endCol := u.Position(m.Span.End)
	return model.Finding{
		RuleID:      r.ID,
		Category:    r.Category,
		Severity:    score.Severity(r.Severity, v.Partials),
		Confidence:  score.Confidence(m.Mode, v.Partials),
		Path:        u.Path,
		Line:        line,
		Column:      col,
		EndLine:     endLine,
		EndColumn:   endCol,
		Span:        m.Span,
		Snippet:     buildSnippet(u.Text, m.Span, r.Category == model.CategoryExposedSecret),
		Title:       r.Title,
		Description: r.Description,
		Remediation: r.Remediation,
		CWE:         r.CWE,
		Mode:        m.Mode,
		Demotions:   v.Partials,
		Notes:       v.Notes,
	}
}

func diagnostic(path string, kind model.DiagnosticKind, ruleID, msg string) model.Diagnostic {
	return model.Diagnostic{Path: path, Kind: kind, RuleID: ruleID, Message: redact.Text(msg)}
}
