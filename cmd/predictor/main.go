package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/adudulescu/stock-predictor/internal/config"
	"github.com/adudulescu/stock-predictor/internal/logger"
)

const appName = "stock-predictor"

var version = "dev"

// app is the state shared by all subcommands once the root pre-run has
// loaded configuration.
type app struct {
	configPath string
	logLevel   string
	pretty     bool

	cfg *config.Config
	log zerolog.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "predictor",
		Short:         "Stock opportunity scanner",
		Long:          "Scores stocks from price history, analyst targets and ratings, and reports the ones with the most predicted upside.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $CONFIG_PATH or "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug|info|warn|error)")
	root.PersistentFlags().BoolVar(&a.pretty, "pretty", false, "human-readable log output")

	root.AddCommand(
		newRunCmd(a),
		newPredictCmd(a),
		newCollectCmd(a),
		newSeedCmd(a),
		newUsageCmd(a),
		newWatchCmd(a),
		newHistoryCmd(a),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func (a *app) setup() error {
	cfg, err := config.Load(config.ResolvePath(a.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.pretty {
		cfg.Log.Pretty = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	a.cfg = cfg
	a.log = logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(a.log)
	return nil
}
