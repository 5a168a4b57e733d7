package backtest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func baseConfig(lookback int) Config {
	return Config{
		Symbol:         "EUR_USD",
		Period:         "2024-03",
		Lookback:       lookback,
		Risk:           d("0.01"),
		InitialBalance: d("10000"),
		Fees:           trade.DefaultFees(),
	}
}

func fixedClock() func() time.Time {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

// ascendingSeries rises ten pips per bar with a five pip upper wick.
func ascendingSeries(n int) *market.Series {
	s := &market.Series{Instrument: "EUR_USD", Timeframe: market.M15, Source: "ascending"}
	inc := d("0.0010")
	for i := 0; i < n; i++ {
		open := d("1.1000").Add(inc.Mul(decimal.NewFromInt(int64(i))))
		close := open.Add(inc)
		s.Rows = append(s.Rows, market.Row{
			Time:  t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:  open,
			High:  close.Add(d("0.0050")),
			Low:   open.Sub(d("0.0002")),
			Close: close,
		})
	}
	return s
}

// buyOnce opens one market buy at the close of the first bar it sees, 3 pips
// stop and 6 pips target.
type buyOnce struct {
	opened bool
	trade  *trade.Trade
}

func (b *buyOnce) Name() string { return "buy-once" }

func (b *buyOnce) OnStep(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
	if b.opened {
		return nil, nil
	}
	c, err := snap.LastCandle(snap.Primary, market.Requirements{})
	if err != nil {
		return nil, err
	}
	pip := rc.Pip
	t, err := trade.NewMarket(trade.MarketBuy, c.Close,
		c.Close.Sub(pip.Mul(decimal.NewFromInt(3))),
		c.Close.Add(pip.Mul(decimal.NewFromInt(6))), time.Time{})
	if err != nil {
		return nil, err
	}
	b.opened = true
	b.trade = t
	return t, nil
}

func TestNewDriverValidation(t *testing.T) {
	data := Data{Primary: flatSeries(market.M15, 5)}
	s := &buyOnce{}

	_, err := NewDriver(baseConfig(0), data, s)
	assert.Error(t, err)

	cfg := baseConfig(2)
	cfg.Risk = d("0")
	_, err = NewDriver(cfg, data, s)
	assert.Error(t, err)

	cfg = baseConfig(2)
	cfg.InitialBalance = d("-1")
	_, err = NewDriver(cfg, data, s)
	assert.Error(t, err)

	_, err = NewDriver(baseConfig(2), Data{}, s)
	assert.Error(t, err)
	_, err = NewDriver(baseConfig(2), data, nil)
	assert.Error(t, err)

	cfg = baseConfig(2)
	cfg.DelegateManagement = true
	_, err = NewDriver(cfg, data, s)
	assert.ErrorContains(t, err, "does not manage trades")
}

// Scenario A: 101 ascending bars, lookback 100. The buy is opened on the
// close of bar 100 and the target is reached on bar 101.
func TestScenarioAscendingTakeProfit(t *testing.T) {
	strat := &buyOnce{}
	drv, err := NewDriver(baseConfig(100), Data{Primary: ascendingSeries(101)}, strat,
		WithRunID("run-a"), WithClock(fixedClock()))
	require.NoError(t, err)

	rep, err := drv.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-a", rep.RunID)
	assert.Equal(t, 2, rep.Steps)
	assert.Equal(t, 1, rep.Trades)
	assert.Equal(t, 1, rep.Wins)
	assert.Equal(t, 0, rep.Losses)
	assert.Equal(t, 0, rep.Open)

	// 10000 * (1 + 0.01*2 - 0.05*0.01)
	assert.True(t, rep.FinalBalance.Equal(d("10195")), rep.FinalBalance.String())
	assert.Equal(t, trade.TakeProfit, strat.trade.CloseReason)
	assert.Equal(t, trade.Won, strat.trade.Outcome())

	ratio, ok := rep.WinRatio()
	require.True(t, ok)
	assert.True(t, ratio.Equal(d("100")))
	assert.True(t, rep.RiskPct.Equal(d("1")))
	assert.True(t, rep.HasDrawdown)
	assert.True(t, rep.MaxDrawdownPct.IsZero())

	require.Len(t, rep.TradeList, 1)
	tr := rep.TradeList[0]
	assert.Equal(t, "closed", tr.Status)
	assert.Equal(t, "won", tr.Outcome)
	assert.Equal(t, t0.Add(99*15*time.Minute), tr.EntryTime)
	assert.Equal(t, t0.Add(100*15*time.Minute), tr.ExitTime)
	assert.Len(t, rep.Equity, 1)
	assert.Equal(t, t0, rep.Start)
	assert.Equal(t, t0.Add(100*15*time.Minute), rep.End)
}

func TestNoTradesWinRatioNA(t *testing.T) {
	none := StrategyFunc(func(*RunContext, market.Snapshot) (*trade.Trade, error) { return nil, nil })
	drv, err := NewDriver(baseConfig(3), Data{Primary: flatSeries(market.M15, 10)}, none)
	require.NoError(t, err)

	rep, err := drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, rep.Steps)
	assert.Equal(t, 0, rep.Trades)
	_, ok := rep.WinRatio()
	assert.False(t, ok)
	assert.False(t, rep.HasDrawdown)
	assert.True(t, rep.FinalBalance.Equal(rep.InitialBalance))
	assert.Equal(t, "func", rep.Strategy)

	var buf bytes.Buffer
	PrintReport(&buf, rep)
	assert.Contains(t, buf.String(), "Win Ratio:      N/A")
	assert.Contains(t, buf.String(), "Max Drawdown:   N/A")
}

// limitOnce places a buy limit at 1.1000 on its first call and afterwards
// records what the registry looked like on every step.
type limitOnce struct {
	placed  bool
	trade   *trade.Trade
	pending []int
	active  []int
}

func (l *limitOnce) Name() string { return "limit-once" }

func (l *limitOnce) OnStep(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
	l.pending = append(l.pending, rc.PendingTrades())
	l.active = append(l.active, rc.ActiveTrades())
	if l.placed {
		return nil, nil
	}
	t, err := trade.NewPending(trade.BuyLimit, d("1.1000"), d("1.0950"), d("1.1100"), time.Time{})
	if err != nil {
		return nil, err
	}
	l.placed = true
	l.trade = t
	return t, nil
}

// Scenario B: a buy limit registered at step 0 fills on the first later bar
// whose low reaches the limit, not before.
func TestScenarioPendingActivation(t *testing.T) {
	s := flatSeries(market.M15, 8)
	s.Rows[0].Low = d("1.0990") // below the limit, but the order does not exist yet
	s.Rows[5].Low = d("1.0995")

	cfg := baseConfig(1)
	cfg.AllowConcurrent = true
	strat := &limitOnce{}
	drv, err := NewDriver(cfg, Data{Primary: s}, strat)
	require.NoError(t, err)

	rep, err := drv.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 1, 1, 1, 0, 0, 0}, strat.pending)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 1, 1, 1}, strat.active)
	assert.Equal(t, trade.Active, strat.trade.Status())
	assert.Equal(t, trade.Unknown, strat.trade.Outcome())
	assert.Equal(t, 1, rep.Open)
	assert.Equal(t, 1, rep.Trades)
}

func TestConcurrencyGate(t *testing.T) {
	calls := 0
	var opened []*trade.Trade
	strat := StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		calls++
		c, _ := snap.LastCandle(snap.Primary, market.Requirements{})
		tr, err := trade.NewMarket(trade.MarketSell, c.Close, d("1.2000"), d("1.0000"), time.Time{})
		opened = append(opened, tr)
		return tr, err
	})

	drv, err := NewDriver(baseConfig(1), Data{Primary: flatSeries(market.M15, 6)}, strat)
	require.NoError(t, err)
	rep, err := drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "no signals while a trade is active")
	assert.Equal(t, 1, rep.Trades)

	calls = 0
	cfg := baseConfig(1)
	cfg.AllowConcurrent = true
	drv, err = NewDriver(cfg, Data{Primary: flatSeries(market.M15, 6)}, strat)
	require.NoError(t, err)
	rep, err = drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, calls)
	assert.Equal(t, 6, rep.Trades)
	assert.Equal(t, 6, rep.Open)
}

func TestDiscardStalePending(t *testing.T) {
	strat := StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		return trade.NewPending(trade.BuyLimit, d("1.0000"), d("0.9900"), d("1.2000"), time.Time{})
	})

	cfg := baseConfig(1)
	cfg.DiscardStalePending = true
	drv, err := NewDriver(cfg, Data{Primary: flatSeries(market.M15, 5)}, strat)
	require.NoError(t, err)
	rep, err := drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Trades)
	assert.Equal(t, 4, rep.Purged)
	assert.Equal(t, t0.Add(4*15*time.Minute), rep.TradeList[0].EntryTime)

	cfg.DiscardStalePending = false
	drv, err = NewDriver(cfg, Data{Primary: flatSeries(market.M15, 5)}, strat)
	require.NoError(t, err)
	rep, err = drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Trades)
}

func TestDuplicateKeySkipped(t *testing.T) {
	fixed := t0
	strat := StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		return trade.NewPending(trade.BuyLimit, d("1.0000"), d("0.9900"), d("1.2000"), fixed)
	})
	cfg := baseConfig(1)
	cfg.AllowConcurrent = true
	drv, err := NewDriver(cfg, Data{Primary: flatSeries(market.M15, 3)}, strat)
	require.NoError(t, err)
	rep, err := drv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Trades)
	assert.Equal(t, 2, rep.Skipped)
}

func TestInvalidTradeRejected(t *testing.T) {
	strat := StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		return &trade.Trade{Kind: trade.OrderKind("market-hold"), Entry: d("1.1"), StopLoss: d("1.0"), TakeProfit: d("1.2")}, nil
	})
	drv, err := NewDriver(baseConfig(1), Data{Primary: flatSeries(market.M15, 3)}, strat)
	require.NoError(t, err)
	_, err = drv.Run(context.Background())
	assert.ErrorIs(t, err, trade.ErrUnknownOrderKind)

	literal := StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		return &trade.Trade{Kind: trade.MarketBuy, Entry: d("1.1"), StopLoss: d("1.0"), TakeProfit: d("1.2")}, nil
	})
	drv, err = NewDriver(baseConfig(1), Data{Primary: flatSeries(market.M15, 3)}, literal)
	require.NoError(t, err)
	_, err = drv.Run(context.Background())
	assert.ErrorIs(t, err, trade.ErrInvalidTrade)
}

func TestStrategyErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	strat := StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		return nil, boom
	})
	drv, err := NewDriver(baseConfig(1), Data{Primary: flatSeries(market.M15, 3)}, strat)
	require.NoError(t, err)
	_, err = drv.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "step 0")
}

func TestContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	strat := StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		steps++
		if steps == 3 {
			cancel()
		}
		return nil, nil
	})
	drv, err := NewDriver(baseConfig(1), Data{Primary: flatSeries(market.M15, 10)}, strat)
	require.NoError(t, err)
	rep, err := drv.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, rep.Steps)
}

// A sell whose stop is crossed on the bar after entry.
func stopSeries() *market.Series {
	s := flatSeries(market.M15, 3)
	s.Rows[2].High = d("1.1085")
	s.Rows[2].Close = d("1.1070")
	return s
}

func sellOnce() Strategy {
	done := false
	return StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		if done {
			return nil, nil
		}
		done = true
		return trade.NewMarket(trade.MarketSell, d("1.1050"), d("1.1080"), d("1.0990"), time.Time{})
	})
}

func TestStopModifierHook(t *testing.T) {
	drv, err := NewDriver(baseConfig(2), Data{Primary: stopSeries()}, sellOnce(), WithStopModifier(trade.AdverseExcursion))
	require.NoError(t, err)
	rep, err := drv.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, rep.Losses)
	// close 1.1070 is 20 of the 30 pip stop: ratio 2/3
	tr := rep.TradeList[0]
	assert.Equal(t, "0.6666666666666667", tr.StopRatio.String())
	assert.True(t, rep.FinalBalance.LessThan(d("10000")))
	assert.True(t, rep.FinalBalance.GreaterThan(d("9895")))

	drv, err = NewDriver(baseConfig(2), Data{Primary: stopSeries()}, sellOnce())
	require.NoError(t, err)
	rep, err = drv.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.FinalBalance.Equal(d("9895")))
	assert.True(t, rep.MaxDrawdownPct.Equal(d("1.05")), rep.MaxDrawdownPct.String())
}

// manager closes its trade by hand on the second step it sees it.
type manager struct {
	buyOnce
	seen int
}

func (m *manager) ManageTrade(rc *RunContext, t *trade.Trade, snap market.Snapshot) (Decision, error) {
	m.seen++
	if m.seen < 2 {
		return Decision{}, nil
	}
	return Decision{Closed: true, Reason: trade.StopLoss}, nil
}

func TestDelegatedManagement(t *testing.T) {
	cfg := baseConfig(1)
	cfg.DelegateManagement = true
	m := &manager{}
	// a bar range that would trip the built-in target check immediately
	s := ascendingSeries(5)

	drv, err := NewDriver(cfg, Data{Primary: s}, m)
	require.NoError(t, err)
	rep, err := drv.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, m.seen)
	assert.Equal(t, trade.StopLoss, m.trade.CloseReason)
	assert.Equal(t, 1, rep.Losses)
	assert.True(t, rep.FinalBalance.Equal(d("9895")))
}

// Every registered trade is in exactly one state and has an outcome iff it
// is closed, at every step.
func TestLifecycleInvariantsAcrossRun(t *testing.T) {
	m1 := walkSeries(market.M1, 400)
	var trades []*trade.Trade
	check := func(t *testing.T) {
		for _, tr := range trades {
			st := tr.Status()
			assert.Contains(t, []trade.Status{trade.Pending, trade.Active, trade.Closed}, st)
			if st == trade.Closed {
				assert.NotEqual(t, trade.Unknown, tr.Outcome())
			} else {
				assert.Equal(t, trade.Unknown, tr.Outcome())
			}
		}
	}

	i := 0
	strat := StrategyFunc(func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
		check(t)
		i++
		if i%5 != 0 {
			return nil, nil
		}
		c, err := snap.LastCandle(snap.Primary, market.Requirements{})
		if err != nil {
			return nil, err
		}
		pip := rc.Pip
		var tr *trade.Trade
		switch (i / 5) % 3 {
		case 0:
			tr, err = trade.NewMarket(trade.MarketBuy, c.Close, c.Close.Sub(pip.Mul(d("5"))), c.Close.Add(pip.Mul(d("8"))), time.Time{})
		case 1:
			tr, err = trade.NewPending(trade.SellLimit, c.Close.Add(pip.Mul(d("2"))), c.Close.Add(pip.Mul(d("7"))), c.Close.Sub(pip.Mul(d("6"))), time.Time{})
		default:
			tr, err = trade.NewPending(trade.BuyStop, c.Close.Add(pip.Mul(d("2"))), c.Close.Sub(pip.Mul(d("4"))), c.Close.Add(pip.Mul(d("9"))), time.Time{})
		}
		if err == nil {
			be := tr.Entry.Add(tr.TakeProfit.Sub(tr.Entry).Div(d("2")))
			tr.BreakEven = &be
			trades = append(trades, tr)
		}
		return tr, err
	})

	cfg := baseConfig(10)
	cfg.AllowConcurrent = true
	drv, err := NewDriver(cfg, Data{Primary: m1}, strat)
	require.NoError(t, err)
	rep, err := drv.Run(context.Background())
	require.NoError(t, err)
	check(t)

	assert.Equal(t, len(trades), rep.Trades)
	assert.Equal(t, rep.Trades, rep.Wins+rep.Losses+rep.Open)
	assert.Greater(t, rep.Wins+rep.Losses, 0)

	// drawdown percentage never decreases along the equity curve
	peak := d("10000")
	maxPct := decimal.Zero
	for _, p := range rep.Equity {
		if p.Balance.GreaterThan(peak) {
			peak = p.Balance
		}
		pct := peak.Sub(p.Balance).Div(peak).Mul(d("100"))
		if pct.GreaterThan(maxPct) {
			maxPct = pct
		}
	}
	assert.True(t, maxPct.Equal(rep.MaxDrawdownPct), "%s vs %s", maxPct, rep.MaxDrawdownPct)
}

func TestRunLogsSummary(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	drv, err := NewDriver(baseConfig(100), Data{Primary: ascendingSeries(101)}, &buyOnce{}, WithLogger(zap.New(core)))
	require.NoError(t, err)
	_, err = drv.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("trade registered").Len())
	assert.Equal(t, 1, logs.FilterMessage("trade closed").Len())
	summary := logs.FilterMessage("backtest finished").All()
	require.Len(t, summary, 1)
	assert.Equal(t, "100.00%", summary[0].ContextMap()["win_ratio"])
}
