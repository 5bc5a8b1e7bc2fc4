package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"guardian/internal/model"
	"guardian/internal/rules"
)

func newRulesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List and validate detection rules",
	}
	cmd.AddCommand(newRulesListCmd(c), newRulesValidateCmd(c))
	return cmd
}

func newRulesListCmd(c *cli) *cobra.Command {
	var (
		rulesPaths []string
		noBuiltin  bool
		category   string
		language   string
		status     string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules a scan would load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("rules") && len(c.cfg.RulesDirs) > 0 {
				rulesPaths = c.cfg.RulesDirs
			}
			reg, err := loadRegistry(rulesPaths, noBuiltin)
			if err != nil {
				return err
			}

			var cat model.Category
			if strings.TrimSpace(category) != "" {
				if cat, err = model.ParseCategory(category); err != nil {
					return usageError("--category: " + err.Error())
				}
			}
			statusValue := rules.Status(strings.ToLower(strings.TrimSpace(status)))
			switch statusValue {
			case "", rules.StatusDraft, rules.StatusEnabled, rules.StatusDisabled:
			default:
				return usageError("--status must be draft, enabled, or disabled")
			}

			candidates := reg.All()
			if strings.TrimSpace(language) != "" {
				candidates = reg.ForLanguage(strings.ToLower(strings.TrimSpace(language)))
			}
			selected := make([]rules.Rule, 0, len(candidates))
			for _, r := range candidates {
				if cat != "" && r.Category != cat {
					continue
				}
				if statusValue != "" && r.Status != statusValue {
					continue
				}
				selected = append(selected, r.Rule)
			}

			switch strings.ToLower(strings.TrimSpace(format)) {
			case "json":
				return writeRulesJSON(c.stdout, selected)
			case "table", "":
				writeRulesTable(c.stdout, selected)
				return nil
			default:
				return usageError("--format must be table or json")
			}
		},
	}
	cmd.Flags().StringSliceVar(&rulesPaths, "rules", nil, "Custom rule pack file or directory (repeatable)")
	cmd.Flags().BoolVar(&noBuiltin, "no-builtin", false, "Do not list the built-in rules")
	cmd.Flags().StringVar(&category, "category", "", "Only list rules of this category")
	cmd.Flags().StringVar(&language, "language", "", "Only list rules that apply to this language")
	cmd.Flags().StringVar(&status, "status", "", "status filter: draft|enabled|disabled")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	return cmd
}

func newRulesValidateCmd(c *cli) *cobra.Command {
	var noBuiltin bool
	cmd := &cobra.Command{
		Use:   "validate [file-or-dir...]",
		Short: "Validate custom rule packs",
		Long: "Validate custom rule packs. With no arguments the default rule\n" +
			"directories are checked. Built-in rules are included so duplicate\n" +
			"ids are caught.",
		RunE: func(_ *cobra.Command, args []string) error {
			custom, err := loadCustomRules(args)
			if err != nil {
				return err
			}
			defs := make([]rules.Rule, 0, len(custom)+64)
			if !noBuiltin {
				defs = append(defs, rules.Builtin()...)
			}
			defs = append(defs, custom...)

			if errs := rules.Validate(defs); len(errs) > 0 {
				lines := make([]string, 0, len(errs))
				for _, e := range errs {
					lines = append(lines, e.Error())
				}
				return fmt.Errorf("invalid rules:\n- %s", strings.Join(lines, "\n- "))
			}
			fmt.Fprintf(c.stdout, "validated %d rules (%d custom)\n", len(defs), len(custom))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBuiltin, "no-builtin", false, "Skip duplicate-id checks against the built-in rules")
	return cmd
}

func writeRulesTable(w io.Writer, rs []rules.Rule) {
	if len(rs) == 0 {
		fmt.Fprintln(w, "no rules found")
		return
	}
	fmt.Fprintf(w, "%-14s %-9s %-22s %-9s %-8s %s\n", "ID", "SEVERITY", "CATEGORY", "STATUS", "SOURCE", "TITLE")
	for _, r := range rs {
		fmt.Fprintf(w, "%-14s %-9s %-22s %-9s %-8s %s\n", r.ID, r.Severity, r.Category, r.Status, r.Source, r.Title)
	}
}

func writeRulesJSON(w io.Writer, rs []rules.Rule) error {
	b, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
