package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func runCtx() *backtest.RunContext {
	return &backtest.RunContext{Symbol: "EURUSD", Pip: d("0.0001")}
}

func bar(at time.Time, o, h, l, c string, cols map[string]string) market.Row {
	r := market.Row{Time: at, Open: d(o), High: d(h), Low: d(l), Close: d(c)}
	for k, v := range cols {
		r.SetColumn(k, d(v))
	}
	return r
}

func snapOf(rows ...market.Row) market.Snapshot {
	return market.Snapshot{
		Primary: market.M15,
		Frames:  map[market.Timeframe][]market.Row{market.M15: rows},
	}
}

func TestRegistry(t *testing.T) {
	assert.Subset(t, Names(), []string{"noop", "ema-bias", "bollinger-rsi", "ema-cross"})

	s, err := New(" EMA-Bias", nil)
	require.NoError(t, err)
	assert.Equal(t, "ema-bias", s.Name())

	_, err = New("martingale", nil)
	assert.ErrorContains(t, err, "unknown strategy")

	_, err = New("ema-bias", Params{"ema": "x"})
	assert.Error(t, err)
	_, err = New("ema-bias", Params{"hour_from": "18", "hour_to": "9"})
	assert.Error(t, err)
	_, err = New("bollinger-rsi", Params{"oversold": "80"})
	assert.Error(t, err)
	_, err = New("ema-cross", Params{"fast": "30", "slow": "10"})
	assert.Error(t, err)

	n, err := New("noop", nil)
	require.NoError(t, err)
	tr, err := n.OnStep(runCtx(), snapOf())
	assert.NoError(t, err)
	assert.Nil(t, tr)
}

func TestParams(t *testing.T) {
	p := Params{"ema": "25, 50,200", "stop": "2.5", "n": " 7 "}

	ints, err := p.Ints("ema", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{25, 50, 200}, ints)

	def, err := p.Ints("missing", []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, def)

	n, err := p.Int("n", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	v, err := p.Decimal("stop", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, v.Equal(d("2.5")))

	_, err = Params{"n": "seven"}.Int("n", 0)
	assert.Error(t, err)
}

func TestEMABias(t *testing.T) {
	s := NewEMABias()
	ema := func(v string) map[string]string { return map[string]string{"EMA25": v, "EMA50": "1.1"} }

	tests := []struct {
		name     string
		at       time.Time
		close    string
		ema      string
		kind     trade.OrderKind
		sl, tp   string
		noSignal bool
	}{
		{name: "above ema buys", at: t0, close: "1.1050", ema: "1.1000", kind: trade.MarketBuy, sl: "1.1047", tp: "1.1056"},
		{name: "below ema sells", at: t0, close: "1.0950", ema: "1.1000", kind: trade.MarketSell, sl: "1.0953", tp: "1.0944"},
		{name: "on the ema", at: t0, close: "1.1000", ema: "1.1000", noSignal: true},
		{name: "before hours", at: t0.Add(-2 * time.Hour), close: "1.1050", ema: "1.1000", noSignal: true},
		{name: "last hour", at: t0.Add(7*time.Hour + 45*time.Minute), close: "1.1050", ema: "1.1000", kind: trade.MarketBuy, sl: "1.1047", tp: "1.1056"},
		{name: "after hours", at: t0.Add(8 * time.Hour), close: "1.1050", ema: "1.1000", noSignal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapOf(bar(tt.at, tt.close, tt.close, tt.close, tt.close, ema(tt.ema)))
			tr, err := s.OnStep(runCtx(), snap)
			require.NoError(t, err)
			if tt.noSignal {
				assert.Nil(t, tr)
				return
			}
			require.NotNil(t, tr)
			assert.Equal(t, tt.kind, tr.Kind)
			assert.True(t, tr.Entry.Equal(d(tt.close)))
			assert.True(t, tr.StopLoss.Equal(d(tt.sl)), tr.StopLoss.String())
			assert.True(t, tr.TakeProfit.Equal(d(tt.tp)), tr.TakeProfit.String())
			assert.True(t, tr.RiskReward.Equal(d("2")))
			assert.Nil(t, tr.BreakEven)
			assert.Equal(t, "my_bot_trade", tr.Comment)
			assert.Equal(t, trade.Active, tr.Status())
			assert.Equal(t, tt.at, tr.EntryTime)
		})
	}

	_, err := s.OnStep(runCtx(), snapOf(bar(t0, "1", "1", "1", "1", nil)))
	assert.ErrorIs(t, err, market.ErrMissingIndicator)
	assert.Equal(t, []int{25, 50}, s.Requirements().EMAs)
}

func bands(rsi string) map[string]string {
	return map[string]string{
		market.ColUpperBollinger:  "1.1040",
		market.ColMiddleBollinger: "1.1000",
		market.ColLowerBollinger:  "1.0960",
		market.ColRSI:             rsi,
	}
}

func TestBollingerRSISignals(t *testing.T) {
	s := NewBollingerRSI()

	tr, err := s.OnStep(runCtx(), snapOf(bar(t0, "1.1045", "1.1055", "1.1044", "1.1050", bands("75"))))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, trade.MarketSell, tr.Kind)
	assert.True(t, tr.StopLoss.Equal(d("1.1052")))
	assert.True(t, tr.TakeProfit.Equal(d("1.1046")))
	assert.Equal(t, "RSI_bot", tr.Comment)

	tr, err = s.OnStep(runCtx(), snapOf(bar(t0, "1.0955", "1.0956", "1.0945", "1.0950", bands("25"))))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, trade.MarketBuy, tr.Kind)
	assert.True(t, tr.StopLoss.Equal(d("1.0948")))
	assert.True(t, tr.TakeProfit.Equal(d("1.0954")))

	// opened inside the band
	tr, err = s.OnStep(runCtx(), snapOf(bar(t0, "1.1030", "1.1055", "1.1030", "1.1050", bands("75"))))
	require.NoError(t, err)
	assert.Nil(t, tr)

	// RSI not stretched
	tr, err = s.OnStep(runCtx(), snapOf(bar(t0, "1.1045", "1.1055", "1.1044", "1.1050", bands("65"))))
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = s.OnStep(runCtx(), snapOf(bar(t0.Add(-3*time.Hour), "1.1045", "1.1055", "1.1044", "1.1050", bands("75"))))
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestBollingerRSIManageTrade(t *testing.T) {
	s := NewBollingerRSI()
	at := t0.Add(15 * time.Minute)

	tests := []struct {
		name       string
		h, l       string
		want       backtest.Decision
		wantReward string
	}{
		{name: "stop first when both touched", h: "1.1010", l: "1.0998", want: backtest.Decision{Closed: true, Reason: trade.StopLoss}},
		{name: "target touched but not crossed", h: "1.1004", l: "1.0999", want: backtest.Decision{}},
		{name: "target crossed", h: "1.1005", l: "1.0999", want: backtest.Decision{Closed: true, Reason: trade.TakeProfit}, wantReward: "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := trade.NewMarket(trade.MarketBuy, d("1.1000"), d("1.0998"), d("1.1004"), t0)
			require.NoError(t, err)
			tr.RiskReward = decimal.Zero

			dec, err := s.ManageTrade(runCtx(), tr, snapOf(bar(at, "1.1000", tt.h, tt.l, "1.1001", nil)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, dec)
			if tt.wantReward != "" {
				assert.True(t, tr.RiskReward.Equal(d(tt.wantReward)), tr.RiskReward.String())
			}
		})
	}

	sell, err := trade.NewMarket(trade.MarketSell, d("1.1050"), d("1.1052"), d("1.1046"), t0)
	require.NoError(t, err)
	dec, err := s.ManageTrade(runCtx(), sell, snapOf(bar(at, "1.1050", "1.1051", "1.1045", "1.1046", nil)))
	require.NoError(t, err)
	assert.Equal(t, backtest.Decision{Closed: true, Reason: trade.TakeProfit}, dec)
}

func TestBollingerRSIDelegatedRun(t *testing.T) {
	s := &market.Series{Instrument: "EUR_USD", Timeframe: market.M15}
	s.Rows = []market.Row{
		bar(t0, "1.1045", "1.1055", "1.1044", "1.1050", bands("75")),
		bar(t0.Add(15*time.Minute), "1.1050", "1.1051", "1.1045", "1.1047", bands("50")),
		bar(t0.Add(30*time.Minute), "1.1047", "1.1049", "1.1041", "1.1042", bands("50")),
	}

	cfg := backtest.Config{
		Symbol:             "EUR_USD",
		Period:             "2024-03",
		Lookback:           1,
		Risk:               d("0.01"),
		InitialBalance:     d("10000"),
		Fees:               trade.DefaultFees(),
		DelegateManagement: true,
	}
	drv, err := backtest.NewDriver(cfg, backtest.Data{Primary: s}, NewBollingerRSI())
	require.NoError(t, err)
	rep, err := drv.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Trades)
	assert.Equal(t, 1, rep.Wins)
	assert.True(t, rep.FinalBalance.Equal(d("10195")), rep.FinalBalance.String())
	require.Len(t, rep.TradeList, 1)
	assert.Equal(t, trade.TakeProfit, rep.TradeList[0].CloseReason)
	assert.Equal(t, t0.Add(15*time.Minute), rep.TradeList[0].ExitTime)
}

func TestEMACross(t *testing.T) {
	s := EMACrossDefaults()
	cols := func(fast, slow string) map[string]string {
		return map[string]string{"EMA10": fast, "EMA30": slow}
	}
	prevAt, at := t0, t0.Add(15*time.Minute)

	tr, err := s.OnStep(runCtx(), snapOf(
		bar(prevAt, "1.1", "1.1", "1.1", "1.1", cols("1.0999", "1.1000")),
		bar(at, "1.1000", "1.1010", "1.0990", "1.1005", cols("1.1001", "1.1000")),
	))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, trade.MarketBuy, tr.Kind)
	assert.True(t, tr.StopLoss.Equal(d("1.0985")))
	assert.True(t, tr.TakeProfit.Equal(d("1.1045")))
	assert.Equal(t, "BullCross", tr.Comment)

	tr, err = s.OnStep(runCtx(), snapOf(
		bar(prevAt, "1.1", "1.1", "1.1", "1.1", cols("1.1000", "1.1000")),
		bar(at, "1.1000", "1.1010", "1.0990", "1.0995", cols("1.0999", "1.1000")),
	))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, trade.MarketSell, tr.Kind)

	// no cross
	tr, err = s.OnStep(runCtx(), snapOf(
		bar(prevAt, "1.1", "1.1", "1.1", "1.1", cols("1.1002", "1.1000")),
		bar(at, "1.1", "1.1", "1.1", "1.1", cols("1.1001", "1.1000")),
	))
	require.NoError(t, err)
	assert.Nil(t, tr)

	// slow EMA still warming up on the previous bar
	tr, err = s.OnStep(runCtx(), snapOf(
		bar(prevAt, "1.1", "1.1", "1.1", "1.1", map[string]string{"EMA10": "1.0999"}),
		bar(at, "1.1", "1.1", "1.1", "1.1", cols("1.1001", "1.1000")),
	))
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = s.OnStep(runCtx(), snapOf(bar(at, "1.1", "1.1", "1.1", "1.1", cols("1.1001", "1.1000"))))
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestEMACrossADXFilter(t *testing.T) {
	st, err := New("ema-cross", Params{"adx_min": "25"})
	require.NoError(t, err)
	s := st.(*EMACross)
	assert.True(t, s.Requirements().ADX)

	prevAt, at := t0, t0.Add(15*time.Minute)
	cross := func(adx string) market.Snapshot {
		cur := map[string]string{"EMA10": "1.1001", "EMA30": "1.1000"}
		if adx != "" {
			cur[market.ColADX] = adx
		}
		return snapOf(
			bar(prevAt, "1.1", "1.1", "1.1", "1.1", map[string]string{"EMA10": "1.0999", "EMA30": "1.1000"}),
			bar(at, "1.1000", "1.1010", "1.0990", "1.1005", cur),
		)
	}

	tr, err := s.OnStep(runCtx(), cross("31.5"))
	require.NoError(t, err)
	require.NotNil(t, tr)

	tr, err = s.OnStep(runCtx(), cross("18"))
	require.NoError(t, err)
	assert.Nil(t, tr, "weak trend")

	tr, err = s.OnStep(runCtx(), cross(""))
	require.NoError(t, err)
	assert.Nil(t, tr, "ADX warming up")
}
