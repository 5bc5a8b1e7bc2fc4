package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"guardian/internal/config"
	"guardian/internal/logging"
)

const (
	exitRuntime  = 1
	exitFindings = 2
)

// ExitError carries the process exit code for main. Code 2 means the
// scan met the failure threshold; anything else is a usage or runtime
// failure.
type ExitError struct {
	Code int
	Err  error
	// Reported means the reason was already written to stderr.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitRuntime
}

// Reported reports whether err was already explained on stderr.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	debug  bool
	cfg    config.Config
	log    *zap.SugaredLogger
}

func Execute(args []string) error {
	return run(args, os.Stdout, os.Stderr, os.Stdin)
}

func run(args []string, stdout, stderr io.Writer, stdin io.Reader) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(&cli{stdout: stdout, stderr: stderr, stdin: stdin})
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "guardian",
		Short:         "Guardian - rule-based static analysis for insecure code patterns",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			c.cfg = cfg
			if cfg.Debug != nil && !cmd.Flags().Changed("debug") {
				c.debug = *cfg.Debug
			}
			log, err := logging.New(c.debug)
			if err != nil {
				return err
			}
			c.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetIn(c.stdin)
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newScanCmd(c),
		newWatchCmd(c),
		newRulesCmd(c),
		newSuppressCmd(c),
		newHookCmd(c),
		newVersionCmd(c),
	)
	return root
}

func (c *cli) logger() *zap.SugaredLogger {
	if c.log == nil {
		return logging.Nop()
	}
	return c.log
}

func (c *cli) warnf(format string, args ...any) {
	fmt.Fprintf(c.stderr, "[guardian] warning: "+format+"\n", args...)
}

func usageError(msg string) error {
	return &ExitError{Code: exitRuntime, Err: errors.New(msg)}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func noColorEnv() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}
