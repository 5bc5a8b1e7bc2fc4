package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guardian/internal/model"
	"guardian/internal/suppress"
)

func newSuppressCmd(c *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "suppress",
		Short: "Manage file-level suppressions",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "Suppressions file (default .guardian/suppressions.yaml)")
	resolve := func() string {
		if strings.TrimSpace(file) != "" {
			return file
		}
		if c.cfg.Suppressions != "" {
			return c.cfg.Suppressions
		}
		return suppress.DefaultPath(".")
	}
	cmd.AddCommand(
		newSuppressAddCmd(c, resolve),
		newSuppressListCmd(c, resolve),
		newSuppressRemoveCmd(c, resolve),
	)
	return cmd
}

func newSuppressAddCmd(c *cli, path func() string) *cobra.Command {
	var r suppress.Rule
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a suppression rule",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			r.Reason = strings.TrimSpace(r.Reason)
			if r.Reason == "" {
				return usageError("--reason is required")
			}
			if r.RuleID == "" && r.Category == "" && r.Files == "" && r.Severity == "" {
				return usageError("at least one of --rule, --category, --files or --severity is required")
			}
			if strings.TrimSpace(r.RuleID) == "*" {
				return usageError("--rule '*' would suppress everything; narrow it")
			}
			if r.Category != "" {
				cat, err := model.ParseCategory(r.Category)
				if err != nil {
					return usageError("--category: " + err.Error())
				}
				r.Category = string(cat)
			}
			if r.Severity != "" {
				sev, err := model.ParseSeverity(r.Severity)
				if err != nil {
					return usageError("--severity: " + err.Error())
				}
				r.Severity = string(sev)
			}
			if r.HasInvalidExpiry() {
				return usageError("--expires must be YYYY-MM-DD")
			}

			file := path()
			existing, err := suppress.Load(file)
			if err != nil {
				return err
			}
			updated := suppress.EnsureRuleIDs(append(existing, r))
			if err := suppress.Save(file, updated); err != nil {
				return err
			}
			added := updated[len(updated)-1]
			fmt.Fprintf(c.stdout, "added suppression %s\n", added.ID)
			fmt.Fprintf(c.stdout, "file: %s\n", file)
			return nil
		},
	}
	cmd.Flags().StringVar(&r.ID, "id", "", "Suppression id (generated when empty)")
	cmd.Flags().StringVar(&r.RuleID, "rule", "", "Rule id glob, e.g. SEC-*")
	cmd.Flags().StringVar(&r.Category, "category", "", "Finding category")
	cmd.Flags().StringVar(&r.Files, "files", "", "Path glob, e.g. test/**")
	cmd.Flags().StringVar(&r.Severity, "severity", "", "Finding severity")
	cmd.Flags().StringVar(&r.Reason, "reason", "", "Why the matches are acceptable (required)")
	cmd.Flags().StringVar(&r.Author, "author", "", "Who approved the suppression")
	cmd.Flags().StringVar(&r.Expires, "expires", "", "Expiry date YYYY-MM-DD")
	return cmd
}

func newSuppressListCmd(c *cli, path func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List suppression rules",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			list, err := suppress.Load(path())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(c.stdout, "no suppressions")
				return nil
			}
			now := time.Now().UTC()
			for _, r := range list {
				state := "active"
				switch {
				case r.HasInvalidExpiry():
					state = "bad-expiry"
				case r.IsExpired(now):
					state = "expired"
				}
				fmt.Fprintf(c.stdout, "%-20s %-10s rule=%s category=%s files=%s severity=%s expires=%s reason=%s\n",
					r.ID, state, dash(r.RuleID), dash(r.Category), dash(r.Files), dash(r.Severity), dash(r.Expires), r.Reason)
			}
			return nil
		},
	}
}

func newSuppressRemoveCmd(c *cli, path func() string) *cobra.Command {
	var opts suppress.MatchOptions
	cmd := &cobra.Command{
		Use:   "remove [id-glob]",
		Short: "Remove suppression rules matching every given selector",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.IDPattern = args[0]
			}
			file := path()
			list, err := suppress.Load(file)
			if err != nil {
				return err
			}
			kept, removed := suppress.RemoveMatching(list, opts)
			if len(removed) == 0 {
				return errors.New("no suppressions matched")
			}
			if err := suppress.Save(file, kept); err != nil {
				return err
			}
			for _, r := range removed {
				fmt.Fprintf(c.stdout, "removed suppression %s\n", r.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.RuleID, "rule", "", "Match by rule glob")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Match by category")
	cmd.Flags().StringVar(&opts.Files, "files", "", "Match by files glob")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "Match by severity")
	return cmd
}

func dash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
