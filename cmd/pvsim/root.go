package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/edp1096/toy-pv/internal/config"
	"github.com/edp1096/toy-pv/internal/logging"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
	logger  = logr.Discard()
)

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "pvsim",
	Short: "Photovoltaic cell, string and array solver",
	Long: `pvsim solves operating points of photovoltaic strings and arrays described
in a netlist. Cells follow the single-diode model with a bypass diode; strings
and arrays are solved by damped searches over their members.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pvsim.yaml)")
	flags.String("log-level", "info", "log level: error, warn, info, debug, trace")
	flags.StringP("output", "o", "table", "output format: table, json, yaml")

	mustBindFlags(v, flags, map[string]string{
		"log.level":     "log-level",
		"output.format": "output",
	})
}

// mustBindFlags binds config keys to flags so that a flag set on the command
// line wins over the file and the environment.
func mustBindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

// initConfig loads configuration from the config file and environment.
func initConfig() error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err = logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.V(logging.DEBUG).Info("Using config file", "file", used)
	}
	return nil
}
