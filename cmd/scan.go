package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guardian/internal/aggregate"
	"guardian/internal/config"
	"guardian/internal/intake"
	"guardian/internal/model"
	"guardian/internal/progress"
	"guardian/internal/report"
	"guardian/internal/rules"
	"guardian/internal/scan"
	"guardian/internal/suppress"
	"guardian/internal/tui"
	"guardian/internal/version"
)

const defaultMaxFiles = 20000

type scanFlags struct {
	format       string
	out          string
	failOn       string
	minSeverity  string
	categories   []string
	onlyRules    []string
	skipRules    []string
	rulesPaths   []string
	noBuiltin    bool
	includeDraft bool
	suppressions string
	workers      int
	maxFileBytes int64
	maxFiles     int
	exclude      []string
	allFiles     bool
	color        string

	tui                 bool
	noTUI               bool
	progress            bool
	maxSuppressionRatio float64

	stdin     bool
	stdinPath string
}

// scanPlan is everything resolved from flags and config before any file
// is read.
type scanPlan struct {
	registry    *rules.Registry
	fileRules   []suppress.Rule
	format      report.Format
	failOn      model.Severity
	minSeverity model.Severity
	color       bool
}

func newScanCmd(c *cli) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan files, directories or .zip archives for insecure patterns",
		Long: "Scan files, directories or .zip archives for insecure patterns.\n\n" +
			"Exit status is 0 when no finding reaches --fail-on, 2 when one does\n" +
			"and 1 on usage or runtime errors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.applyConfig(c.cfg, cmd.Flags().Changed)
			return c.runScan(cmd.Context(), f, args)
		},
	}
	f.registerCommon(cmd)
	cmd.Flags().StringVar(&f.failOn, "fail-on", "high", "Exit 2 when a finding is at or above this severity (critical|high|medium|low|none)")
	cmd.Flags().IntVar(&f.maxFiles, "max-files", defaultMaxFiles, "Maximum included file count")
	cmd.Flags().BoolVar(&f.tui, "tui", false, "Enable interactive terminal UI")
	cmd.Flags().BoolVar(&f.noTUI, "no-tui", false, "Disable interactive terminal UI")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "Print per-file progress lines to stderr")
	cmd.Flags().Float64Var(&f.maxSuppressionRatio, "max-suppression-ratio", 1.0, "Exit 2 when suppressed/(findings+suppressed) exceeds this ratio (1.0 disables)")
	cmd.Flags().BoolVar(&f.stdin, "stdin", false, "Scan content read from stdin instead of paths")
	cmd.Flags().StringVar(&f.stdinPath, "stdin-path", "", "Path reported for --stdin content; its extension selects the language")
	return cmd
}

// registerCommon binds the flags shared by scan and watch.
func (f *scanFlags) registerCommon(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", "human", "Output format: human|json|sarif|markdown")
	fl.StringVarP(&f.out, "out", "o", "", "Write the report to this file instead of stdout")
	fl.StringVar(&f.minSeverity, "min-severity", "", "Only report findings at or above this severity")
	fl.StringSliceVar(&f.categories, "category", nil, "Only run rules of these categories (repeatable or comma-separated)")
	fl.StringSliceVar(&f.onlyRules, "only-rule", nil, "Only run specific rule ID(s) (repeatable or comma-separated)")
	fl.StringSliceVar(&f.skipRules, "skip-rule", nil, "Skip specific rule ID(s) (repeatable or comma-separated)")
	fl.StringSliceVar(&f.rulesPaths, "rules", nil, "Custom rule pack file or directory (repeatable; default .guardian/rules and ~/.guardian/rules)")
	fl.BoolVar(&f.noBuiltin, "no-builtin", false, "Do not load the built-in rules")
	fl.BoolVar(&f.includeDraft, "include-draft", false, "Also run rules with status draft")
	fl.StringVar(&f.suppressions, "suppressions", "", "Suppressions file (default .guardian/suppressions.yaml)")
	fl.IntVar(&f.workers, "workers", 4, "Files scanned concurrently (1-256)")
	fl.Int64Var(&f.maxFileBytes, "max-file-bytes", scan.DefaultMaxFileBytes, "Skip files larger than this many bytes")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "Ignore pattern in .guardianignore syntax (repeatable)")
	fl.BoolVar(&f.allFiles, "all-files", false, "Scan every regular file, not only known source extensions")
	fl.StringVar(&f.color, "color", "auto", "Colorize human output: auto|always|never")
}

// applyConfig fills every flag the user did not set from the config file.
func (f *scanFlags) applyConfig(cfg config.Config, changed func(string) bool) {
	if cfg.Workers != nil && !changed("workers") {
		f.workers = *cfg.Workers
	}
	if cfg.FailOn != "" && !changed("fail-on") {
		f.failOn = cfg.FailOn
	}
	if cfg.MinSeverity != "" && !changed("min-severity") {
		f.minSeverity = cfg.MinSeverity
	}
	if cfg.Format != "" && !changed("format") {
		f.format = cfg.Format
	}
	if len(cfg.RulesDirs) > 0 && !changed("rules") {
		f.rulesPaths = cfg.RulesDirs
	}
	if cfg.NoBuiltinRules != nil && !changed("no-builtin") {
		f.noBuiltin = *cfg.NoBuiltinRules
	}
	if len(cfg.Exclude) > 0 && !changed("exclude") {
		f.exclude = cfg.Exclude
	}
	if cfg.MaxFileBytes != nil && !changed("max-file-bytes") {
		f.maxFileBytes = *cfg.MaxFileBytes
	}
	if cfg.Suppressions != "" && !changed("suppressions") {
		f.suppressions = cfg.Suppressions
	}
	if len(cfg.Categories) > 0 && !changed("category") {
		f.categories = cfg.Categories
	}
}

func (c *cli) runScan(ctx context.Context, f *scanFlags, paths []string) error {
	if f.stdin && len(paths) > 0 {
		return usageError("--stdin cannot be combined with paths")
	}
	plan, err := c.planScan(f)
	if err != nil {
		return err
	}

	var env report.Envelope
	var scanErr error
	if f.stdin {
		env, scanErr = c.scanStdin(ctx, f, plan)
	} else {
		env, scanErr = c.scanPaths(ctx, f, plan, paths, c.useTUI(f))
	}
	if scanErr != nil && env.RunID == "" {
		return scanErr
	}
	if err := c.emit(f, plan, env); err != nil {
		return err
	}
	if scanErr != nil {
		return &ExitError{Code: exitRuntime, Err: fmt.Errorf("scan interrupted: %w", scanErr)}
	}
	if err := checkSuppressionRatio(f.maxSuppressionRatio, env.Result); err != nil {
		c.warnf("%v", err)
		return &ExitError{Code: exitFindings, Err: err}
	}
	if plan.failOn != "" && aggregate.MeetsThreshold(env.Result, plan.failOn) {
		return &ExitError{Code: exitFindings, Err: fmt.Errorf("findings at or above %s", plan.failOn)}
	}
	return nil
}

func (c *cli) planScan(f *scanFlags) (scanPlan, error) {
	var plan scanPlan
	if f.tui && f.noTUI {
		return plan, usageError("cannot set both --tui and --no-tui")
	}
	if !f.stdin && strings.TrimSpace(f.stdinPath) != "" {
		return plan, usageError("--stdin-path requires --stdin")
	}
	if f.stdin && f.tui {
		return plan, usageError("cannot use --tui with --stdin")
	}
	if f.workers < 1 || f.workers > 256 {
		return plan, usageError("--workers must be between 1 and 256")
	}
	if f.maxFileBytes <= 0 {
		return plan, usageError("--max-file-bytes must be > 0")
	}
	if f.maxFiles < 0 {
		return plan, usageError("--max-files must be >= 0")
	}
	if f.maxSuppressionRatio < 0 || f.maxSuppressionRatio > 1 {
		return plan, usageError("--max-suppression-ratio must be between 0 and 1")
	}

	var err error
	if plan.format, err = report.ParseFormat(f.format); err != nil {
		return plan, usageError(err.Error())
	}
	if plan.color, err = c.colorEnabled(f.color); err != nil {
		return plan, err
	}
	if plan.failOn, err = parseThreshold(f.failOn); err != nil {
		return plan, usageError("--fail-on: " + err.Error())
	}
	if strings.TrimSpace(f.minSeverity) != "" {
		if plan.minSeverity, err = model.ParseSeverity(f.minSeverity); err != nil {
			return plan, usageError("--min-severity: " + err.Error())
		}
	}
	cats, err := parseCategories(f.categories)
	if err != nil {
		return plan, err
	}

	reg, err := loadRegistry(f.rulesPaths, f.noBuiltin)
	if err != nil {
		return plan, err
	}
	filtered, warnings, err := reg.Filter(rules.Selector{
		OnlyIDs:      f.onlyRules,
		SkipIDs:      f.skipRules,
		Categories:   cats,
		IncludeDraft: f.includeDraft,
	})
	for _, w := range warnings {
		c.warnf("%s", w)
	}
	if err != nil {
		return plan, err
	}
	plan.registry = filtered

	if plan.fileRules, err = c.loadFileRules(f.suppressions); err != nil {
		return plan, err
	}
	c.logger().Debugw("scan plan", "rules", plan.registry.Len(), "suppressions", len(plan.fileRules), "format", plan.format)
	return plan, nil
}

// scanPaths discovers and scans paths. The returned envelope is empty only
// when nothing was scanned; on cancellation it carries the partial result
// alongside the error.
func (c *cli) scanPaths(ctx context.Context, f *scanFlags, plan scanPlan, paths []string, useTUI bool) (report.Envelope, error) {
	found, err := intake.Discover(intake.Options{
		Paths:    paths,
		Exclude:  f.exclude,
		MaxFiles: f.maxFiles,
		AllFiles: f.allFiles,
	})
	if err != nil {
		return report.Envelope{}, err
	}
	defer func() { _ = found.Close() }()
	c.logger().Debugw("discovered files", "files", len(found.Files), "skipped", found.SkippedFiles, "reasons", found.SkippedByReason)
	return c.scanInputs(ctx, f, plan, found.Inputs(f.maxFileBytes), useTUI)
}

// scanStdin scans one buffer read from stdin under --stdin-path.
func (c *cli) scanStdin(ctx context.Context, f *scanFlags, plan scanPlan) (report.Envelope, error) {
	data, err := io.ReadAll(io.LimitReader(c.stdin, f.maxFileBytes+1))
	if err != nil {
		return report.Envelope{}, fmt.Errorf("read stdin: %w", err)
	}
	if int64(len(data)) > f.maxFileBytes {
		return report.Envelope{}, fmt.Errorf("stdin exceeds --max-file-bytes (%d)", f.maxFileBytes)
	}
	name := filepath.ToSlash(strings.TrimSpace(f.stdinPath))
	if name == "" {
		name = "stdin"
	}
	return c.scanInputs(ctx, f, plan, []scan.Input{{Path: name, Content: data}}, false)
}

func (c *cli) scanInputs(ctx context.Context, f *scanFlags, plan scanPlan, inputs []scan.Input, useTUI bool) (report.Envelope, error) {
	runID := report.NewRunID()
	started := time.Now().UTC()
	opts := scan.Options{
		Workers:      f.workers,
		MaxFileBytes: f.maxFileBytes,
		FileRules:    plan.fileRules,
		RunID:        runID,
	}
	res, scanErr := c.execute(ctx, plan.registry, inputs, opts, f.progress, useTUI)
	res = aggregate.Filter(res, plan.minSeverity, nil)

	env := report.NewEnvelope(res, report.Meta{
		RunID:   runID,
		Version: version.Resolved(),
		Started: started,
		Rules:   plan.registry.Len(),
	})
	return env, scanErr
}

func (c *cli) execute(ctx context.Context, reg *rules.Registry, inputs []scan.Input, opts scan.Options, plain, useTUI bool) (model.ScanResult, error) {
	sinks := progress.MultiSink{progress.NewLogSink(c.logger())}
	if plain {
		sinks = append(sinks, progress.NewPlainSink(c.stderr))
	}
	if !useTUI {
		opts.Sink = sinks
		return scan.Run(ctx, reg, inputs, opts)
	}

	events := make(chan progress.Event, 128)
	opts.Sink = append(sinks, progress.NewChannelSink(events))

	type runResult struct {
		res model.ScanResult
		err error
	}
	runDone := make(chan runResult, 1)
	go func() {
		defer close(events)
		res, err := scan.Run(ctx, reg, inputs, opts)
		runDone <- runResult{res: res, err: err}
	}()

	uiErr := tui.Run(tui.Options{Events: events, Output: c.stderr, Input: c.stdin})
	result := <-runDone
	if uiErr != nil {
		c.warnf("terminal UI failed: %v", uiErr)
	}
	return result.res, result.err
}

func (c *cli) emit(f *scanFlags, plan scanPlan, env report.Envelope) error {
	if strings.TrimSpace(f.out) == "" {
		return report.Render(c.stdout, plan.format, env, report.RenderOptions{Color: plan.color, Verbose: c.debug})
	}
	if err := report.WriteFile(f.out, plan.format, env, report.RenderOptions{Verbose: c.debug}); err != nil {
		return err
	}
	printScanSummary(c.stdout, env, f.out)
	return nil
}

func printScanSummary(w io.Writer, env report.Envelope, out string) {
	res := env.Result
	fmt.Fprintf(w, "run id:      %s\n", env.RunID)
	if out != "" {
		fmt.Fprintf(w, "report:      %s\n", filepath.Clean(out))
	}
	fmt.Fprintf(w, "rules:       %d\n", env.Rules)
	fmt.Fprintf(w, "files:       %d scanned, %d skipped, %d errored\n", res.FilesScanned, len(res.Skipped()), len(res.Errored()))
	fmt.Fprintf(w, "findings:    %d (critical=%d high=%d medium=%d low=%d)\n",
		len(res.Findings),
		res.CountsBySeverity[model.SeverityCritical],
		res.CountsBySeverity[model.SeverityHigh],
		res.CountsBySeverity[model.SeverityMedium],
		res.CountsBySeverity[model.SeverityLow],
	)
	fmt.Fprintf(w, "suppressed:  %d\n", len(res.Suppressed))
}

func (c *cli) loadFileRules(path string) ([]suppress.Rule, error) {
	if strings.TrimSpace(path) == "" {
		path = suppress.DefaultPath(".")
	}
	fileRules, err := suppress.Load(path)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	active := fileRules[:0]
	for _, r := range fileRules {
		switch {
		case r.HasInvalidExpiry():
			c.warnf("suppression %s has unparseable expiry %q and never expires", r.ID, r.Expires)
		case r.IsExpired(now):
			c.warnf("suppression %s expired on %s and is ignored", r.ID, r.Expires)
			continue
		}
		active = append(active, r)
	}
	return active, nil
}

// loadRegistry builds the registry from the built-in rules and the custom
// packs under paths, or the default rule directories when paths is empty.
func loadRegistry(paths []string, noBuiltin bool) (*rules.Registry, error) {
	var defs []rules.Rule
	if !noBuiltin {
		defs = append(defs, rules.Builtin()...)
	}
	custom, err := loadCustomRules(paths)
	if err != nil {
		return nil, err
	}
	defs = append(defs, custom...)
	if len(defs) == 0 {
		return nil, errors.New("no rules loaded: --no-builtin needs --rules or a rules directory")
	}
	return rules.NewRegistry(defs)
}

func loadCustomRules(paths []string) ([]rules.Rule, error) {
	if len(paths) > 0 {
		return rules.LoadPaths(paths)
	}
	dirs, err := rules.DefaultDirs()
	if err != nil {
		return nil, err
	}
	var out []rules.Rule
	for _, dir := range dirs {
		rs, err := rules.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

func parseThreshold(raw string) (model.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "never":
		return "", nil
	default:
		return model.ParseSeverity(raw)
	}
}

func parseCategories(raw []string) ([]model.Category, error) {
	out := make([]model.Category, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		cat, err := model.ParseCategory(r)
		if err != nil {
			return nil, usageError("--category: " + err.Error())
		}
		out = append(out, cat)
	}
	return out, nil
}

func (c *cli) colorEnabled(mode string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		return isTerminal(c.stdout) && !noColorEnv(), nil
	default:
		return false, usageError("--color must be auto, always, or never")
	}
}

func (c *cli) useTUI(f *scanFlags) bool {
	use := isTerminal(c.stdout) && isTerminal(c.stderr) && isTerminal(c.stdin)
	if f.tui {
		use = true
	}
	if f.noTUI {
		use = false
	}
	return use
}

// checkSuppressionRatio fails when suppressions hide more than maxRatio of
// all matches. A ratio of 1 disables the check.
func checkSuppressionRatio(maxRatio float64, res model.ScanResult) error {
	if maxRatio >= 1 {
		return nil
	}
	total := len(res.Findings) + len(res.Suppressed)
	if total == 0 {
		return nil
	}
	ratio := float64(len(res.Suppressed)) / float64(total)
	if ratio > maxRatio {
		return fmt.Errorf("suppression ratio %.2f exceeds --max-suppression-ratio %.2f (%d of %d matches suppressed)", ratio, maxRatio, len(res.Suppressed), total)
	}
	return nil
}
