package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/reckless/internal/app/manager"
	"github.com/alexisbeaulieu97/reckless/internal/config"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/internal/telemetry"
)

// appContext builds the service for a command from the root flags.
type appContext struct {
	flags  *rootFlags
	tracer *sdktrace.TracerProvider
}

func (a *appContext) service(cmd *cobra.Command, operation string) (*manager.Service, error) {
	settings, err := config.Load(config.Overrides{
		SettingsFile: a.flags.settingsFile,
		LightningDir: a.flags.lightningDir,
		RecklessDir:  a.flags.recklessDir,
		Conf:         a.flags.conf,
		Network:      a.flags.network,
		Regtest:      a.flags.regtest,
		Verbose:      a.flags.verbose,
		Trace:        a.flags.trace,
	}, os.LookupEnv)
	if err != nil {
		return nil, newCommandError(operation, "loading settings", err, "Check the flags and the settings file.")
	}

	level := "warn"
	if settings.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{
		Level:         level,
		HumanReadable: isTerminal(cmd.ErrOrStderr()),
		Writer:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, newCommandError(operation, "creating logger", err, "This is a bug, please report it.")
	}

	if settings.Trace && a.tracer == nil {
		if a.tracer, err = telemetry.InitTracing(cmd.ErrOrStderr(), version); err != nil {
			return nil, newCommandError(operation, "starting tracing", err, "Run again without --trace.")
		}
	}

	svc, err := manager.Build(*settings, manager.BuildOptions{
		Log:          log,
		StreamOutput: settings.Verbose && !isTerminal(cmd.OutOrStdout()),
	})
	if err != nil {
		return nil, newCommandError(operation, "preparing installers", err, "This is a bug, please report it.")
	}
	return svc, nil
}

// close flushes traces, if any were started.
func (a *appContext) close(ctx context.Context) error {
	tp := a.tracer
	a.tracer = nil
	return telemetry.ShutdownTracing(context.WithoutCancel(ctx), tp)
}

func isTerminal(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}
