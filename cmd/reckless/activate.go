package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reckless/internal/pipeline"
)

type activationFunc func(ctx context.Context, name string) (pipeline.Installed, error)

func newEnableCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <plugin> [<plugin>...]",
		Short: "Start installed plugins and load them at daemon startup",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd, "enable")
			if err != nil {
				return err
			}
			return runActivation(cmd, "enable", "enabled", svc.Enable, args)
		},
	}
}

func newDisableCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <plugin> [<plugin>...]",
		Short: "Stop installed plugins and keep them from loading at daemon startup",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd, "disable")
			if err != nil {
				return err
			}
			return runActivation(cmd, "disable", "disabled", svc.Disable, args)
		},
	}
}

func runActivation(cmd *cobra.Command, operation, done string, fn activationFunc, names []string) error {
	b := &batch{operation: operation}
	for _, name := range names {
		inst, err := fn(cmd.Context(), name)
		cont, cmdErr := b.record(name, err)
		if !cont {
			return cmdErr
		}
		if cmdErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), cmdErr)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", inst.Name, done)
	}
	return b.err()
}
