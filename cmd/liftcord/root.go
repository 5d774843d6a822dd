package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liftcord/liftcord/config"
	"github.com/liftcord/liftcord/logging"
)

type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "liftcord",
		Short: "liftcord - reconnect backoff tooling",
		Long: `liftcord - reconnect backoff tooling.

Settings are read from liftcord.yaml (or --config) and can be overridden
with LIFTCORD_* environment variables, e.g. LIFTCORD_BACKOFF_BASE=2.
`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: a.init,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./liftcord.yaml)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newSimulateCmd(a),
		newServeMetricsCmd(a),
	)

	return cmd
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}
