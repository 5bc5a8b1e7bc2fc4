package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guardian/internal/intake"
	"guardian/internal/watch"
)

func newWatchCmd(c *cli) *cobra.Command {
	f := &scanFlags{}
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-scan a directory whenever its files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			f.applyConfig(c.cfg, cmd.Flags().Changed)
			f.noTUI = true
			return c.runWatch(cmd.Context(), f, root, debounce)
		},
	}
	f.registerCommon(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a re-scan")
	return cmd
}

func (c *cli) runWatch(ctx context.Context, f *scanFlags, root string, debounce time.Duration) error {
	plan, err := c.planScan(f)
	if err != nil {
		return err
	}
	outPath := ""
	if strings.TrimSpace(f.out) != "" {
		if outPath, err = filepath.Abs(f.out); err != nil {
			return fmt.Errorf("resolve --out: %w", err)
		}
	}

	scanOnce := func(ctx context.Context) error {
		env, err := c.scanPaths(ctx, f, plan, []string{root}, false)
		if err != nil && env.RunID == "" {
			return err
		}
		if err := c.emit(f, plan, env); err != nil {
			return err
		}
		return nil
	}
	if err := scanOnce(ctx); err != nil {
		c.warnf("scan failed: %v", err)
	}

	return watch.Run(ctx, watch.Config{
		Root:     root,
		Debounce: debounce,
		SkipDir:  intake.SkipDir,
		Log:      c.logger(),
		OnChange: func(ctx context.Context, changed []string) error {
			changed = relevantChanges(changed, outPath)
			if len(changed) == 0 {
				return nil
			}
			fmt.Fprintf(c.stderr, "[guardian] %d path(s) changed, rescanning\n", len(changed))
			return scanOnce(ctx)
		},
		OnError: func(err error) { c.warnf("%v", err) },
	})
}

// relevantChanges drops the report file and atomic-write temporaries so a
// report written inside the watched tree does not trigger another scan.
func relevantChanges(changed []string, outPath string) []string {
	out := changed[:0]
	for _, p := range changed {
		if outPath != "" && filepath.Clean(p) == outPath {
			continue
		}
		if strings.HasPrefix(filepath.Base(p), ".guardian-tmp-") {
			continue
		}
		out = append(out, p)
	}
	return out
}
