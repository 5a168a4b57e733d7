package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/journal"
)

func newJournalCmd(ro *rootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the SQLite run journal",
		Long: `Query and display backtest runs stored in the SQLite journal.

Examples:
  backtester journal runs --strategy ema-bias
  backtester journal show 01HQ3Z...
  backtester journal trades 01HQ3Z...`,
	}
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "path to SQLite journal DB (default from config)")

	open := func(cmd *cobra.Command) (*journal.SQLite, error) {
		path := dbPath
		if path == "" {
			cfg, err := ro.loadConfig(cmd)
			if err != nil {
				return nil, err
			}
			path = cfg.Journal.DBPath
		}
		j, err := journal.NewSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	var filter journal.RunFilter
	runs := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open(cmd)
			if err != nil {
				return err
			}
			defer j.Close()

			reports, err := j.ListRuns(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("query runs: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTRATEGY\tSYMBOL\tPERIOD\tTRADES\tWIN RATIO\tRETURN\tMAX DD")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					r.RunID, r.Strategy, r.Symbol, r.Period, r.Trades,
					backtest.Percent(r.WinRatio()),
					backtest.Percent(r.ReturnPct()),
					backtest.Percent(r.MaxDrawdownPct, r.HasDrawdown))
			}
			return tw.Flush()
		},
	}
	runs.Flags().StringVar(&filter.Symbol, "symbol", "", "only runs of this symbol")
	runs.Flags().StringVar(&filter.Strategy, "strategy", "", "only runs of this strategy")
	runs.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of runs (0 for all)")

	var org bool
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open(cmd)
			if err != nil {
				return err
			}
			defer j.Close()

			r, err := j.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !org {
				backtest.PrintReport(cmd.OutOrStdout(), r)
				return nil
			}
			out, err := journal.FormatReportOrg(r)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	show.Flags().BoolVar(&org, "org", false, "render as an Org-mode document")

	trades := &cobra.Command{
		Use:   "trades <run-id>",
		Short: "Print the trades of one run as Org blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open(cmd)
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.ListTrades(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			for i, t := range recs {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(t))
			}
			return nil
		},
	}

	cmd.AddCommand(runs, show, trades)
	return cmd
}
