package main

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reckless/internal/plugin"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

func newSearchCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <plugin> [<plugin>...]",
		Short: "Look for plugins in the configured sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd, "search")
			if err != nil {
				return err
			}

			var found []plugin.Descriptor
			for _, name := range args {
				d, err := svc.Search(cmd.Context(), name)
				switch {
				case err == nil:
					found = append(found, d)
				case errors.Is(err, recklesserrors.ErrNotFound):
					fmt.Fprintf(cmd.ErrOrStderr(), "Search exhausted all sources: %s not found\n", name)
				default:
					return newCommandError("search", name, err, suggestionFor(err))
				}
			}
			if len(found) > 0 {
				renderSearchTable(cmd, found)
			}
			return nil
		},
	}
}

func renderSearchTable(cmd *cobra.Command, found []plugin.Descriptor) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"PLUGIN", "SOURCE", "TYPE", "SUBDIRECTORY", "ENTRYPOINT"})
	for _, d := range found {
		entry := d.Entrypoint
		if entry == "" {
			entry = "(resolved at install)"
		}
		t.AppendRow(table.Row{d.Name, d.Source, d.SourceType.String(), valueOrFallback(d.Subdir, "."), entry})
	}
	t.Render()
}

func valueOrFallback(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
