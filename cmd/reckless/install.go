package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reckless/internal/app/manager"
	"github.com/alexisbeaulieu97/reckless/internal/pipeline"
	"github.com/alexisbeaulieu97/reckless/internal/plugin"
	"github.com/alexisbeaulieu97/reckless/internal/tui"
)

func newInstallCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "install <plugin>[@commit] [<plugin>...]",
		Short: "Search for, install and enable plugins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd, "install")
			if err != nil {
				return err
			}
			return runInstall(cmd, svc, args, app.flags.verbose)
		},
	}
}

func runInstall(cmd *cobra.Command, svc *manager.Service, targets []string, verbose bool) error {
	b := &batch{operation: "install"}
	interactive := isTerminal(cmd.OutOrStdout())

	for _, target := range targets {
		var installed plugin.Descriptor
		install := func(ctx context.Context, observe pipeline.Observer) error {
			var err error
			installed, err = svc.Install(ctx, target, observe)
			return err
		}

		var err error
		if interactive {
			err = tui.Run(cmd.Context(), target, cmd.InOrStdin(), cmd.OutOrStdout(), install)
		} else {
			var observe pipeline.Observer
			if verbose {
				observe = tui.Printer(cmd.ErrOrStderr())
			}
			err = install(cmd.Context(), observe)
		}

		cont, cmdErr := b.record(target, err)
		if !cont {
			return cmdErr
		}
		if cmdErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), cmdErr)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s installed and enabled: %s\n", installed.Name, installed.EntrypointPath())
	}
	return b.err()
}

func newUninstallCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <plugin> [<plugin>...]",
		Short: "Disable and remove installed plugins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd, "uninstall")
			if err != nil {
				return err
			}
			b := &batch{operation: "uninstall"}
			for _, name := range args {
				removed, err := svc.Uninstall(cmd.Context(), name)
				cont, cmdErr := b.record(name, err)
				if !cont {
					return cmdErr
				}
				if cmdErr != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), cmdErr)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s uninstalled\n", removed.Name)
			}
			return b.err()
		},
	}
}
