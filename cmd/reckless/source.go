package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSourceCmd(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage the places plugins are searched for",
	}
	cmd.AddCommand(newSourceListCmd(app), newSourceAddCmd(app), newSourceRemoveCmd(app))
	return cmd
}

func newSourceListCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plugin sources in search order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd, "list sources")
			if err != nil {
				return err
			}
			sources, err := svc.Sources()
			if err != nil {
				return newCommandError("list sources", "reading the sources file", err, "Check permissions on the reckless directory.")
			}
			if len(sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sources configured. Add one with 'reckless source add <repo-or-dir>'.")
				return nil
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"#", "SOURCE"})
			for i, src := range sources {
				t.AppendRow(table.Row{i + 1, src})
			}
			t.Render()
			return nil
		},
	}
}

func newSourceAddCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <repo-or-dir> [<repo-or-dir>...]",
		Short: "Add plugin sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd, "add source")
			if err != nil {
				return err
			}
			for _, src := range args {
				if err := svc.AddSource(src); err != nil {
					return newCommandError("add source", src, err, suggestionFor(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "source added: %s\n", src)
			}
			return nil
		},
	}
}

func newSourceRemoveCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <source> [<source>...]",
		Aliases: []string{"rm", "rem"},
		Short:   "Remove plugin sources",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd, "remove source")
			if err != nil {
				return err
			}
			for _, src := range args {
				if err := svc.RemoveSource(src); err != nil {
					return newCommandError("remove source", src, err, "Run 'reckless source list' to see the configured sources.")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "plugin source removed: %s\n", src)
			}
			return nil
		},
	}
}
