package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/strategies"
)

func newConfigCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage backtest configuration files.

Examples:
  backtester config init -o backtest.yaml
  backtester config validate -f backtest.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nEdit the file and run with:")
			fmt.Fprintf(out, "  backtester run --config %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "backtest.yaml", "output config file path")

	var path string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			if _, err := strategies.New(cfg.Strategy.Name, strategies.Params(cfg.Strategy.Params)); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			tfs, _ := cfg.Timeframes()
			labels := make([]string, len(tfs))
			for i, tf := range tfs {
				labels[i] = tf.String()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(out, "  Run: %s lookback %d (risk %s%%, balance %s)\n",
				cfg.Run.Symbol, cfg.Run.Lookback, cfg.Run.Risk.Shift(2).String(), cfg.Run.InitialBalance.StringFixed(2))
			fmt.Fprintf(out, "  Timeframes: %s\n", strings.Join(labels, ", "))
			fmt.Fprintf(out, "  Strategy: %s\n", cfg.Strategy.Name)
			return nil
		},
	}
	validate.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	validate.MarkFlagRequired("file")

	cmd.AddCommand(initCmd, validate)
	return cmd
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the bundled strategies",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range strategies.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
