package tui

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"guardian/internal/progress"
)

type Options struct {
	Events <-chan progress.Event
	// Output defaults to the terminal; tests pass a buffer.
	Output io.Writer
	Input  io.Reader
}

// Run shows live scan progress until the event channel closes or the
// run-finished event arrives.
func Run(opts Options) error {
	if opts.Events == nil {
		return fmt.Errorf("tui events channel is required")
	}

	progOpts := []tea.ProgramOption{}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	p := tea.NewProgram(newModel(opts.Events), progOpts...)
	_, err := p.Run()
	return err
}
