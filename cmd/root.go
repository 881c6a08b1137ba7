package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:               "bid-intel",
	Short:             "Pricing analytics over public construction bid records",
	Long:              "Imports bid tabulations, serves pay-item pricing and contractor analytics over HTTP, and prices bulk item lists from xlsx workbooks.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// setup loads configuration and installs the global logger before any
// subcommand runs.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c
	zap.L().Debug("config loaded",
		zap.String("command", cmd.Name()),
		zap.String("driver", c.Store.Driver),
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
