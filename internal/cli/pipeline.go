package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/rustyeddy/backtester/trade"
)

// runBacktest loads the data named by cfg, builds the strategy and replays
// one period. A cancelled ctx yields the partial report and ctx.Err().
func runBacktest(ctx context.Context, cfg *config.Config, log *zap.Logger) (backtest.Report, error) {
	strat, err := strategies.New(cfg.Strategy.Name, strategies.Params(cfg.Strategy.Params))
	if err != nil {
		return backtest.Report{}, err
	}

	data, err := loadData(cfg, indicatorConfig(cfg.Indicators, strat), log)
	if err != nil {
		return backtest.Report{}, err
	}

	opts := []backtest.Option{backtest.WithLogger(log)}
	if cfg.Run.StopModifier == "adverse-excursion" {
		opts = append(opts, backtest.WithStopModifier(trade.AdverseExcursion))
	}

	drv, err := backtest.NewDriver(backtest.Config{
		Symbol:              cfg.Run.Symbol,
		Period:              cfg.Run.Period,
		Lookback:            cfg.Run.Lookback,
		Risk:                cfg.Run.Risk,
		InitialBalance:      cfg.Run.InitialBalance,
		Fees:                cfg.Run.Fees,
		AllowConcurrent:     cfg.Run.AllowConcurrent,
		DiscardStalePending: cfg.Run.DiscardStalePending,
		DelegateManagement:  cfg.Run.DelegateManagement,
	}, data, strat, opts...)
	if err != nil {
		return backtest.Report{}, err
	}
	return drv.Run(ctx)
}

const defaultADXPeriod = 14

// indicatorConfig widens the configured indicators with whatever the
// strategy reads.
func indicatorConfig(base indicators.Config, s backtest.Strategy) indicators.Config {
	ic := base
	ic.EMAs = slices.Clone(base.EMAs)
	r, ok := s.(strategies.Requirer)
	if !ok {
		return ic
	}
	req := r.Requirements()
	for _, p := range req.EMAs {
		if !slices.Contains(ic.EMAs, p) {
			ic.EMAs = append(ic.EMAs, p)
		}
	}
	def := indicators.DefaultConfig()
	if req.Bollinger && ic.BollingerPeriod <= 0 {
		ic.BollingerPeriod, ic.BollingerK = def.BollingerPeriod, def.BollingerK
	}
	if req.RSI && ic.RSIPeriod <= 0 {
		ic.RSIPeriod = def.RSIPeriod
	}
	if req.ADX && ic.ADXPeriod <= 0 {
		ic.ADXPeriod = defaultADXPeriod
	}
	return ic
}

func loadData(cfg *config.Config, ic indicators.Config, log *zap.Logger) (backtest.Data, error) {
	tfs, err := cfg.Timeframes()
	if err != nil {
		return backtest.Data{}, err
	}
	if cfg.Data.Primary.Path == "" {
		return backtest.Data{}, fmt.Errorf("no primary data file (set data.primary.path or pass a file)")
	}

	primary, err := loadSeries(cfg.Data.Primary.Path, tfs[0], cfg.Run.Symbol)
	if err != nil {
		return backtest.Data{}, err
	}
	data := backtest.Data{Primary: primary}

	for _, f := range cfg.Data.Secondary {
		tf, _ := market.ParseTimeframe(f.Timeframe)
		s, err := loadSeries(f.Path, tf, cfg.Run.Symbol)
		if err != nil {
			return backtest.Data{}, err
		}
		data.Secondary = append(data.Secondary, s)
	}
	for _, label := range cfg.Data.Resample {
		tf, _ := market.ParseTimeframe(label)
		s, err := market.Resample(primary, tf)
		if err != nil {
			return backtest.Data{}, err
		}
		data.Secondary = append(data.Secondary, s)
	}

	if cfg.Data.Enrich {
		for _, s := range append([]*market.Series{primary}, data.Secondary...) {
			if err := indicators.Enrich(s, ic); err != nil {
				return backtest.Data{}, fmt.Errorf("%s: %w", s.Source, err)
			}
		}
	}

	log.Info("data loaded",
		zap.String("primary", primary.Source),
		zap.Int("bars", primary.Len()),
		zap.Int("secondaries", len(data.Secondary)),
	)
	return data, nil
}

func loadSeries(path string, tf market.Timeframe, symbol string) (*market.Series, error) {
	s, err := market.LoadCSV(path, tf)
	if err != nil {
		return nil, err
	}
	s.Instrument = market.NormalizeSymbol(symbol)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// buildSinks opens every configured report sink. The returned func closes
// the ones holding connections.
func buildSinks(ctx context.Context, cfg config.JournalConfig, log *zap.Logger) (journal.Multi, func(), error) {
	var (
		sinks   journal.Multi
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("closing report sink", zap.Error(err))
			}
		}
	}

	if cfg.Dir != "" {
		sinks = append(sinks, journal.TextLog{Dir: cfg.Dir}, journal.TradeYAML{Dir: cfg.Dir})
		if cfg.Org {
			sinks = append(sinks, journal.Org{Dir: filepath.Join(cfg.Dir, "org")})
		}
		if cfg.CSV {
			sinks = append(sinks, journal.CSV{Dir: filepath.Join(cfg.Dir, "csv")})
		}
	}
	if cfg.DBPath != "" {
		db, err := journal.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, func() {}, err
		}
		sinks = append(sinks, db)
		closers = append(closers, db.Close)
	}
	if cfg.Redis.Addr != "" {
		pub, err := journal.NewRedisPublisher(ctx, cfg.Redis, log)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, pub)
		closers = append(closers, pub.Close)
	}
	return sinks, closeAll, nil
}

// periodLabel names a batch run after its data file: eurusd_2024-01.csv.xz
// becomes eurusd_2024-01.
func periodLabel(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".xz", ".csv", ".txt"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
