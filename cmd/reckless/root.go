package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	settingsFile string
	lightningDir string
	recklessDir  string
	conf         string
	network      string
	regtest      bool
	verbose      bool
	trace        bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	app := &appContext{flags: flags}

	cmd := &cobra.Command{
		Use:           "reckless",
		Short:         "Install, enable and remove Core Lightning plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close(cmd.Context())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.settingsFile, "settings", "", "Path to a reckless settings file")
	pf.StringVarP(&flags.lightningDir, "lightning", "l", "", "lightningd data directory (default ~/.lightning)")
	pf.StringVarP(&flags.recklessDir, "reckless-dir", "d", "", "Data directory for reckless (default <lightning>/reckless)")
	pf.StringVarP(&flags.conf, "conf", "c", "", "lightningd config file to update")
	pf.StringVar(&flags.network, "network", "", "Network whose config is updated (default bitcoin)")
	pf.BoolVarP(&flags.regtest, "regtest", "r", false, "Shortcut for --network=regtest")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Print debug output")
	pf.BoolVar(&flags.trace, "trace", false, "Write installation trace spans to stderr")

	cmd.AddCommand(newInstallCmd(app))
	cmd.AddCommand(newUninstallCmd(app))
	cmd.AddCommand(newSearchCmd(app))
	cmd.AddCommand(newEnableCmd(app))
	cmd.AddCommand(newDisableCmd(app))
	cmd.AddCommand(newSourceCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
