package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/reckless/internal/pipeline"
)

// InstallFunc performs an installation, reporting progress to observe.
type InstallFunc func(ctx context.Context, observe pipeline.Observer) error

// Run shows a live view of install for plugin on out. Interrupting the view
// cancels the context passed to install; Run waits for install to return.
func Run(ctx context.Context, plugin string, in io.Reader, out io.Writer, install InstallFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(NewModel(plugin), tea.WithInput(in), tea.WithOutput(out))

	done := make(chan error, 1)
	go func() {
		err := install(ctx, func(ev pipeline.Event) {
			program.Send(EventMsg{Event: ev})
		})
		program.Send(DoneMsg{Err: err})
		done <- err
	}()

	final, runErr := program.Run()
	if m, ok := final.(Model); ok && m.Cancelled() {
		cancel()
	}
	if runErr != nil {
		// The program is gone; stop the installation so it can roll back.
		cancel()
	}

	if err := <-done; err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("progress view: %w", runErr)
	}
	return nil
}

// Printer returns an observer writing one line per event, for output that is
// not a terminal.
func Printer(out io.Writer) pipeline.Observer {
	return func(ev pipeline.Event) {
		if ev.Failed {
			fmt.Fprintf(out, "%s: %s failed: %v\n", ev.Plugin, ev.Stage, ev.Err)
			return
		}
		if ev.Detail != "" {
			fmt.Fprintf(out, "%s: %s (%s)\n", ev.Plugin, ev.Stage, ev.Detail)
			return
		}
		fmt.Fprintf(out, "%s: %s\n", ev.Plugin, ev.Stage)
	}
}
