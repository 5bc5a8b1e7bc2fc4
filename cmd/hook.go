package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guardian/internal/aggregate"
	"guardian/internal/audit"
	"guardian/internal/model"
	"guardian/internal/rules"
	"guardian/internal/scan"
	"guardian/internal/suppress"
)

const (
	maxHookInputBytes = 16 << 20
	hookListLimit     = 5
)

// hookPayload is the JSON an editor sends before or after a file write.
type hookPayload struct {
	ToolName  string `json:"tool_name"`
	ToolInput struct {
		FilePath  string `json:"file_path"`
		Content   string `json:"content"`
		NewString string `json:"new_string"`
		Edits     []struct {
			NewString string `json:"new_string"`
		} `json:"edits"`
	} `json:"tool_input"`
}

func (p hookPayload) writesFile() bool {
	switch p.ToolName {
	case "Write", "Edit", "MultiEdit":
		return true
	}
	return false
}

// proposed returns the text about to be written: the whole file for Write,
// the replacement fragments for edits.
func (p hookPayload) proposed() string {
	if p.ToolInput.Content != "" {
		return p.ToolInput.Content
	}
	if p.ToolInput.NewString != "" {
		return p.ToolInput.NewString
	}
	parts := make([]string, 0, len(p.ToolInput.Edits))
	for _, e := range p.ToolInput.Edits {
		parts = append(parts, e.NewString)
	}
	return strings.Join(parts, "\n")
}

type hookFlags struct {
	rulesPaths   []string
	noBuiltin    bool
	blockOn      string
	projectDir   string
	maxFileBytes int64
}

func newHookCmd(c *cli) *cobra.Command {
	f := &hookFlags{}
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Editor write hooks: validate content before a write, scan and log after it",
		Long: "Editor write hooks read a JSON payload on stdin:\n" +
			"  {\"tool_name\": \"Write\", \"tool_input\": {\"file_path\": ..., \"content\": ...}}\n\n" +
			"pre exits 2 to block the write when a finding reaches --block-on,\n" +
			"1 to warn about lower findings and 0 when clean. post never blocks.",
	}
	pf := cmd.PersistentFlags()
	pf.StringSliceVar(&f.rulesPaths, "rules", nil, "Custom rule pack file or directory (repeatable)")
	pf.BoolVar(&f.noBuiltin, "no-builtin", false, "Do not load the built-in rules")
	pf.StringVar(&f.projectDir, "project-dir", "", "Project root for suppressions and hook state (default $GUARDIAN_PROJECT_DIR or the working directory)")
	pf.Int64Var(&f.maxFileBytes, "max-file-bytes", scan.DefaultMaxFileBytes, "Skip content larger than this many bytes")

	pre := &cobra.Command{
		Use:   "pre",
		Short: "Validate proposed content before it is written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runHookPre(cmd.Context(), f)
		},
	}
	pre.Flags().StringVar(&f.blockOn, "block-on", "high", "Block the write when a finding is at or above this severity (critical|high|medium|low|none)")

	post := &cobra.Command{
		Use:   "post",
		Short: "Scan a written file, log findings and count edits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runHookPost(cmd.Context(), f)
		},
	}

	status := &cobra.Command{
		Use:   "status [file]",
		Short: "Show per-file edit counts recorded by the post hook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.runHookStatus(f, args)
		},
	}

	reset := &cobra.Command{
		Use:   "reset <file>",
		Short: "Forget the edit count of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.runHookReset(f, args[0])
		},
	}

	cmd.AddCommand(pre, post, status, reset)
	return cmd
}

func (f *hookFlags) root() string {
	if dir := strings.TrimSpace(f.projectDir); dir != "" {
		return dir
	}
	if dir := strings.TrimSpace(os.Getenv("GUARDIAN_PROJECT_DIR")); dir != "" {
		return dir
	}
	return "."
}

// resolve anchors a relative payload path at the project root.
func (f *hookFlags) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.root(), path)
}

func (c *cli) readHookPayload() (hookPayload, error) {
	var p hookPayload
	data, err := io.ReadAll(io.LimitReader(c.stdin, maxHookInputBytes))
	if err != nil {
		return p, fmt.Errorf("read hook input: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, usageError("hook input is not a JSON tool payload: " + err.Error())
	}
	return p, nil
}

func (c *cli) hookRegistry(f *hookFlags) (*rules.Registry, []suppress.Rule, error) {
	if len(f.rulesPaths) == 0 && len(c.cfg.RulesDirs) > 0 {
		f.rulesPaths = c.cfg.RulesDirs
	}
	reg, err := loadRegistry(f.rulesPaths, f.noBuiltin)
	if err != nil {
		return nil, nil, err
	}
	reg, _, err = reg.Filter(rules.Selector{})
	if err != nil {
		return nil, nil, err
	}
	fileRules, err := c.loadFileRules(suppress.DefaultPath(f.root()))
	if err != nil {
		return nil, nil, err
	}
	return reg, fileRules, nil
}

func (c *cli) runHookPre(ctx context.Context, f *hookFlags) error {
	blockOn, err := parseThreshold(f.blockOn)
	if err != nil {
		return usageError("--block-on: " + err.Error())
	}
	payload, err := c.readHookPayload()
	if err != nil {
		return err
	}
	content := payload.proposed()
	if !payload.writesFile() || strings.TrimSpace(content) == "" {
		return nil
	}
	if int64(len(content)) > f.maxFileBytes {
		c.warnf("proposed content for %s exceeds --max-file-bytes; not validated", payload.ToolInput.FilePath)
		return nil
	}

	reg, fileRules, err := c.hookRegistry(f)
	if err != nil {
		return err
	}
	display := hookDisplayPath(f.root(), f.resolve(payload.ToolInput.FilePath))
	res, err := scan.Run(ctx, reg, []scan.Input{{Path: display, Content: []byte(content)}}, scan.Options{Workers: 1, FileRules: fileRules})
	if err != nil {
		return err
	}
	c.logger().Debugw("pre-write validation", "file", display, "findings", len(res.Findings))
	if len(res.Findings) == 0 {
		return nil
	}

	if blockOn != "" && aggregate.MeetsThreshold(res, blockOn) {
		blocking := aggregate.Filter(res, blockOn, nil).Findings
		fmt.Fprint(c.stderr, hookMessage("BLOCKED", display, blocking,
			"Fix these before writing, or suppress a reviewed false positive with\n"+
				"  // guardian:suppress <RULE-ID> -- <reason>"))
		c.bumpHookStats(f, func(s *audit.Stats) { s.BlockedOperations++ })
		return &ExitError{Code: exitFindings, Err: fmt.Errorf("write to %s blocked: %d finding(s) at or above %s", display, len(blocking), blockOn), Reported: true}
	}
	fmt.Fprint(c.stderr, hookMessage("WARNING", display, res.Findings, "The write is allowed; review these findings."))
	return &ExitError{Code: exitRuntime, Err: errors.New("findings below the block threshold"), Reported: true}
}

func (c *cli) runHookPost(ctx context.Context, f *hookFlags) error {
	payload, err := c.readHookPayload()
	if err != nil {
		return err
	}
	path := f.resolve(strings.TrimSpace(payload.ToolInput.FilePath))
	if !payload.writesFile() || path == "" {
		return nil
	}

	now := time.Now().UTC()
	tracker, err := audit.OpenTracker(f.root(), now)
	if err != nil {
		return err
	}
	status := tracker.Increment(path, now)
	tracker.Stats.TotalScans++

	var findings []model.Finding
	if _, statErr := os.Stat(path); statErr == nil {
		reg, fileRules, err := c.hookRegistry(f)
		if err != nil {
			return err
		}
		display := hookDisplayPath(f.root(), path)
		res, err := scan.Run(ctx, reg, []scan.Input{scan.FileInput(path, display, f.maxFileBytes)}, scan.Options{Workers: 1, FileRules: fileRules})
		if err != nil {
			return err
		}
		for _, d := range res.Diagnostics {
			c.warnf("%s %s: %s", d.Path, d.Kind, d.Message)
		}
		findings = res.Findings
		if err := audit.AppendFindings(audit.LogPath(f.root()), display, findings, now); err != nil {
			c.warnf("findings log not updated: %v", err)
		}
		ids := make([]string, 0, len(findings))
		for _, fd := range findings {
			ids = append(ids, fd.RuleID)
		}
		tracker.RecordRules(path, ids...)

		severe := aggregate.Filter(res, model.SeverityHigh, nil).Findings
		if len(severe) > 0 {
			fmt.Fprint(c.stderr, hookMessage("SCAN", display, severe, "Run 'guardian scan' for full details."))
			tracker.Stats.WarningsIssued++
		}
	}

	warnIterations := status.Level == audit.LevelWarning || status.Level == audit.LevelHigh
	if warnIterations {
		fmt.Fprintf(c.stderr, "[guardian] %s\n", status.Message())
	}
	if err := tracker.Save(now); err != nil {
		c.warnf("hook state not saved: %v", err)
	}
	if len(findings) > 0 || warnIterations {
		return &ExitError{Code: exitRuntime, Err: errors.New("post-write findings reported"), Reported: true}
	}
	return nil
}

func (c *cli) runHookStatus(f *hookFlags, args []string) error {
	tracker, err := audit.OpenTracker(f.root(), time.Now())
	if err != nil {
		return err
	}
	statuses := tracker.All()
	if len(args) == 1 {
		statuses = []audit.Status{tracker.Status(args[0])}
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.stdout, "No files tracked.")
		return nil
	}
	fmt.Fprintf(c.stdout, "%-40s %5s  %-8s %s\n", "FILE", "EDITS", "LEVEL", "RULES")
	for _, st := range statuses {
		fmt.Fprintf(c.stdout, "%-40s %5d  %-8s %s\n", st.Path, st.Iterations, st.Level, strings.Join(st.RuleIDs, ","))
	}
	s := tracker.Stats
	fmt.Fprintf(c.stdout, "\nscans=%d blocked=%d warnings=%d\n", s.TotalScans, s.BlockedOperations, s.WarningsIssued)
	return nil
}

func (c *cli) runHookReset(f *hookFlags, file string) error {
	now := time.Now()
	tracker, err := audit.OpenTracker(f.root(), now)
	if err != nil {
		return err
	}
	if !tracker.Reset(file) {
		return usageError(file + " is not tracked")
	}
	if err := tracker.Save(now); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Reset %s\n", file)
	return nil
}

// bumpHookStats updates the tracker counters; hook state is best effort.
func (c *cli) bumpHookStats(f *hookFlags, update func(*audit.Stats)) {
	now := time.Now()
	tracker, err := audit.OpenTracker(f.root(), now)
	if err == nil {
		update(&tracker.Stats)
		err = tracker.Save(now)
	}
	if err != nil {
		c.warnf("hook state not saved: %v", err)
	}
}

func hookDisplayPath(root, path string) string {
	if strings.TrimSpace(path) == "" {
		return "proposed"
	}
	absRoot, err1 := filepath.Abs(root)
	absPath, err2 := filepath.Abs(path)
	if err1 == nil && err2 == nil {
		if rel, err := filepath.Rel(absRoot, absPath); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

func hookMessage(kind, path string, findings []model.Finding, footer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[guardian] %s %s: %d finding(s)\n", kind, path, len(findings))
	for i, f := range findings {
		if i == hookListLimit {
			fmt.Fprintf(&b, "  ... and %d more\n", len(findings)-hookListLimit)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s line %d: %s\n", strings.ToUpper(string(f.Severity)), f.RuleID, f.Line, f.Title)
	}
	if footer != "" {
		b.WriteString(footer)
		b.WriteString("\n")
	}
	return b.String()
}
