package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/market"
)

func newDataCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Candle file tools",
	}

	cmd.AddCommand(
		newResampleCmd(),
		newEnrichCmd(ro),
		newGapsCmd(),
	)

	return cmd
}

func newResampleCmd() *cobra.Command {
	var from, to, output string

	cmd := &cobra.Command{
		Use:   "resample <file>",
		Short: "Aggregate a candle file into a coarser timeframe",
		Long: `Aggregate a candle file into a coarser timeframe.

Example:
  backtester data resample --from M1 --to H1 -o eurusd_h1.csv eurusd_m1.csv.xz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := market.ParseTimeframe(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			dst, err := market.ParseTimeframe(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			s, err := market.LoadCSV(args[0], src)
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}
			out, err := market.Resample(s, dst)
			if err != nil {
				return err
			}
			return writeSeries(cmd, output, out)
		},
	}

	cmd.Flags().StringVar(&from, "from", "M1", "timeframe of the input file")
	cmd.Flags().StringVar(&to, "to", "H1", "target timeframe")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newEnrichCmd(ro *rootOptions) *cobra.Command {
	var timeframe, output string

	cmd := &cobra.Command{
		Use:   "enrich <file>",
		Short: "Add the configured indicator columns to a candle file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig(cmd)
			if err != nil {
				return err
			}
			tf, err := market.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			s, err := market.LoadCSV(args[0], tf)
			if err != nil {
				return err
			}
			if err := indicators.Enrich(s, cfg.Indicators); err != nil {
				return err
			}
			return writeSeries(cmd, output, s)
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "M15", "timeframe of the input file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newGapsCmd() *cobra.Command {
	var timeframe string

	cmd := &cobra.Command{
		Use:   "gaps <file>",
		Short: "Report missing bars in a candle file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := market.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			s, err := market.LoadCSV(args[0], tf)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			gaps := s.Gaps()
			counts := map[string]int{}
			for _, g := range gaps {
				counts[g.Kind]++
				after := s.Rows[g.AfterIdx].Time
				fmt.Fprintf(out, "%s  %-10s missing %d bars after %s\n", s.Timeframe, g.Kind, g.Len, after.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "bars: %d  gaps: %d (weekend %d, suspicious %d, minor %d)\n",
				s.Len(), len(gaps), counts["weekend"], counts["suspicious"], counts["minor"])
			return nil
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "M1", "timeframe of the input file")
	return cmd
}

func writeSeries(cmd *cobra.Command, path string, s *market.Series) error {
	var w io.Writer = cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return market.WriteCSV(w, s)
}
