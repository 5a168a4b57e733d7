package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/journal"
)

type runFlags struct {
	data         string
	timeframe    string
	symbol       string
	period       string
	strategy     string
	params       map[string]string
	lookback     int
	risk         string
	balance      string
	resample     []string
	concurrent   bool
	delegate     bool
	discardStale bool
	stopModifier string
	hours        []string

	journalDir string
	dbPath     string
	redisAddr  string
	org        bool
	csv        bool
	noJournal  bool
}

func newRunCmd(ro *rootOptions) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [data-file...]",
		Short: "Replay candle files through a strategy",
		Long: `Replay one or more candle files through a strategy and print the result.

With several files each one is a separate period run with the same settings,
followed by a batch summary. --hours repeats the whole batch once per trading
window and prints a summary for each.

Examples:
  backtester run --config backtest.yaml
  backtester run --strategy ema-bias --timeframe M15 --resample H1 eurusd_m15.csv
  backtester run --strategy bollinger-rsi --delegate jan.csv feb.csv mar.csv
  backtester run --strategy ema-bias --hours 9-19,9-10,10-11 jan.csv feb.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := rf.apply(cmd, cfg); err != nil {
				return err
			}
			windows, err := parseHourWindows(rf.hours)
			if err != nil {
				return err
			}

			files := args
			if len(files) == 0 {
				files = []string{cfg.Data.Primary.Path}
			}
			if len(files) > 1 && len(cfg.Data.Secondary) > 0 {
				return fmt.Errorf("secondary files cannot be combined with a multi-file batch; use --resample")
			}

			log, err := ro.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			sinks, closeSinks, err := buildSinks(ctx, cfg.Journal, log)
			if err != nil {
				return err
			}
			defer closeSinks()

			b := &batch{
				files:   files,
				relabel: len(files) > 1 && !cmd.Flags().Changed("period"),
				sinks:   sinks,
				log:     log,
				out:     cmd.OutOrStdout(),
			}
			if len(windows) == 0 {
				reports, err := b.run(ctx, cfg)
				if err != nil {
					return err
				}
				if len(reports) > 1 {
					backtest.PrintSummary(b.out, backtest.Summarize(reports))
				}
				return nil
			}

			for _, w := range windows {
				c := *cfg
				c.Strategy.Params = w.apply(cfg.Strategy.Params)
				fmt.Fprintf(b.out, "### Trading hours %s UTC\n\n", w)
				reports, err := b.run(ctx, &c)
				if err != nil {
					return fmt.Errorf("hours %s: %w", w, err)
				}
				backtest.PrintSummary(b.out, backtest.Summarize(reports))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&rf.data, "data", "", "primary candle file (csv, optionally .xz)")
	f.StringVar(&rf.timeframe, "timeframe", "M15", "primary timeframe label")
	f.StringVar(&rf.symbol, "symbol", "EUR_USD", "instrument symbol")
	f.StringVar(&rf.period, "period", "", "period label for the report")
	f.StringVar(&rf.strategy, "strategy", "ema-bias", "strategy name (see 'backtester strategies')")
	f.StringToStringVarP(&rf.params, "param", "p", nil, "strategy parameter key=value (repeatable)")
	f.IntVar(&rf.lookback, "lookback", 100, "primary bars per window")
	f.StringVar(&rf.risk, "risk", "0.01", "fraction of balance risked per trade")
	f.StringVar(&rf.balance, "balance", "10000", "initial balance")
	f.StringSliceVar(&rf.resample, "resample", nil, "secondary timeframes built from the primary file")
	f.BoolVar(&rf.concurrent, "concurrent", false, "ask for signals while a trade is active")
	f.BoolVar(&rf.delegate, "delegate", false, "let the strategy manage its own exits")
	f.BoolVar(&rf.discardStale, "discard-stale", false, "drop untriggered pending orders on a new signal")
	f.StringVar(&rf.stopModifier, "stop-modifier", "", "stop-loss sizing: adverse-excursion")
	f.StringSliceVar(&rf.hours, "hours", nil, "sweep trading windows, half-open UTC hours (e.g. 9-19,9-10,10-11)")
	f.StringVar(&rf.journalDir, "journal-dir", "./backtest", "directory for text and YAML reports")
	f.StringVar(&rf.dbPath, "db", "./backtester.sqlite", "SQLite run journal")
	f.StringVar(&rf.redisAddr, "redis", "", "publish reports to this Redis address")
	f.BoolVar(&rf.org, "org", false, "also write an Org report per run")
	f.BoolVar(&rf.csv, "csv", false, "also write trade and equity CSVs per run")
	f.BoolVar(&rf.noJournal, "no-journal", false, "print only, write no reports")

	return cmd
}

// batch runs every file with the same settings and writes each report to the
// sinks.
type batch struct {
	files   []string
	relabel bool
	sinks   journal.Sink
	log     *zap.Logger
	out     io.Writer
}

func (b *batch) run(ctx context.Context, cfg *config.Config) ([]backtest.Report, error) {
	var reports []backtest.Report
	for _, path := range b.files {
		c := *cfg
		c.Data.Primary.Path = path
		if b.relabel {
			c.Run.Period = periodLabel(path)
		}

		rep, err := runBacktest(ctx, &c, b.log)
		if err != nil {
			if errors.Is(err, ctx.Err()) && rep.RunID != "" {
				fmt.Fprintln(b.out, "interrupted, partial result:")
				backtest.PrintReport(b.out, rep)
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		backtest.PrintReport(b.out, rep)

		if err := b.sinks.Write(ctx, rep); err != nil {
			b.log.Error("writing report", zap.String("run_id", rep.RunID), zap.Error(err))
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// hourWindow is a half-open range of UTC hours [From, To).
type hourWindow struct {
	From, To int
}

func (w hourWindow) String() string {
	return fmt.Sprintf("%d-%d", w.From, w.To)
}

// apply returns a copy of params restricted to w. Strategies take an
// inclusive hour_to, so the last hour is To-1.
func (w hourWindow) apply(params map[string]string) map[string]string {
	out := maps.Clone(params)
	if out == nil {
		out = map[string]string{}
	}
	out["hour_from"] = strconv.Itoa(w.From)
	out["hour_to"] = strconv.Itoa(w.To - 1)
	return out
}

// parseHourWindows reads "from-to" pairs such as 9-10.
func parseHourWindows(specs []string) ([]hourWindow, error) {
	var out []hourWindow
	for _, spec := range specs {
		a, b, ok := strings.Cut(strings.TrimSpace(spec), "-")
		if !ok {
			return nil, fmt.Errorf("--hours %q: want from-to", spec)
		}
		from, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("--hours %q: %w", spec, err)
		}
		to, err := strconv.Atoi(b)
		if err != nil {
			return nil, fmt.Errorf("--hours %q: %w", spec, err)
		}
		if from < 0 || to > 24 || to <= from {
			return nil, fmt.Errorf("--hours %q: need 0 <= from < to <= 24", spec)
		}
		out = append(out, hourWindow{From: from, To: to})
	}
	return out, nil
}

// apply overlays the flags the user actually set on cfg.
func (rf *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	set := cmd.Flags().Changed

	if set("data") {
		cfg.Data.Primary.Path = rf.data
	}
	if set("timeframe") {
		cfg.Data.Primary.Timeframe = rf.timeframe
	}
	if set("symbol") {
		cfg.Run.Symbol = rf.symbol
	}
	if set("period") {
		cfg.Run.Period = rf.period
	}
	if set("strategy") {
		cfg.Strategy.Name = rf.strategy
		cfg.Strategy.Params = nil
	}
	if set("param") {
		if cfg.Strategy.Params == nil {
			cfg.Strategy.Params = map[string]string{}
		}
		for k, v := range rf.params {
			cfg.Strategy.Params[k] = v
		}
	}
	if set("lookback") {
		cfg.Run.Lookback = rf.lookback
	}
	if set("risk") {
		d, err := decimal.NewFromString(rf.risk)
		if err != nil {
			return fmt.Errorf("--risk: %w", err)
		}
		cfg.Run.Risk = d
	}
	if set("balance") {
		d, err := decimal.NewFromString(rf.balance)
		if err != nil {
			return fmt.Errorf("--balance: %w", err)
		}
		cfg.Run.InitialBalance = d
	}
	if set("resample") {
		cfg.Data.Resample = rf.resample
	}
	if set("concurrent") {
		cfg.Run.AllowConcurrent = rf.concurrent
	}
	if set("delegate") {
		cfg.Run.DelegateManagement = rf.delegate
	}
	if set("discard-stale") {
		cfg.Run.DiscardStalePending = rf.discardStale
	}
	if set("stop-modifier") {
		cfg.Run.StopModifier = rf.stopModifier
	}
	if set("journal-dir") {
		cfg.Journal.Dir = rf.journalDir
	}
	if set("db") {
		cfg.Journal.DBPath = rf.dbPath
	}
	if set("redis") {
		cfg.Journal.Redis.Addr = rf.redisAddr
	}
	if set("org") {
		cfg.Journal.Org = rf.org
	}
	if set("csv") {
		cfg.Journal.CSV = rf.csv
	}
	if rf.noJournal {
		cfg.Journal = config.JournalConfig{}
	}

	return cfg.Validate()
}
