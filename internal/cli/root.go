// Package cli is the cobra command tree of the backtester binary.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
	Pretty     bool
}

// loadConfig resolves defaults, the config file, .env and BACKTEST_* vars.
func (ro *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(ro.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = ro.LogLevel
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Log.Pretty = ro.Pretty
	}
	return cfg, nil
}

func (ro *rootOptions) logger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Pretty)
}

func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "backtester",
		Short:         "Candle replay backtester with data tooling and a run journal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&ro.Pretty, "pretty", false, "Human readable console logs instead of JSON")

	cmd.AddCommand(
		newRunCmd(ro),
		newDataCmd(ro),
		newJournalCmd(ro),
		newConfigCmd(ro),
		newStrategiesCmd(),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "backtester %s\n", Version)
		},
	})

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
