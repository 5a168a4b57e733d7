package strategies

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
)

// EMACross enters on a fast/slow EMA crossover of the last two primary bars.
//   - bull cross: fast-slow goes from <=0 to >0, buy
//   - bear cross: fast-slow goes from >=0 to <0, sell
//
// The stop is a fixed pip distance and the target a multiple of it. With a
// positive ADXMin, crosses are only taken while ADX is at least that strong.
type EMACross struct {
	FastPeriod int
	SlowPeriod int
	StopPips   decimal.Decimal
	RR         decimal.Decimal
	ADXMin     decimal.Decimal
}

func EMACrossDefaults() *EMACross {
	return &EMACross{
		FastPeriod: 10,
		SlowPeriod: 30,
		StopPips:   decimal.NewFromInt(20),
		RR:         decimal.NewFromInt(2),
	}
}

func newEMACross(p Params) (backtest.Strategy, error) {
	s := EMACrossDefaults()
	var err error
	if s.FastPeriod, err = p.Int("fast", s.FastPeriod); err != nil {
		return nil, err
	}
	if s.SlowPeriod, err = p.Int("slow", s.SlowPeriod); err != nil {
		return nil, err
	}
	if s.FastPeriod <= 0 || s.FastPeriod >= s.SlowPeriod {
		return nil, fmt.Errorf("ema-cross needs 0 < fast < slow, got %d/%d", s.FastPeriod, s.SlowPeriod)
	}
	if s.StopPips, err = p.Decimal("stop_pips", s.StopPips); err != nil {
		return nil, err
	}
	if s.RR, err = p.Decimal("rr", s.RR); err != nil {
		return nil, err
	}
	if !s.StopPips.IsPositive() || !s.RR.IsPositive() {
		return nil, fmt.Errorf("ema-cross stop %s and rr %s must be positive", s.StopPips, s.RR)
	}
	if s.ADXMin, err = p.Decimal("adx_min", s.ADXMin); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EMACross) Name() string { return "ema-cross" }

func (s *EMACross) Requirements() market.Requirements {
	return market.Requirements{
		EMAs: []int{s.FastPeriod, s.SlowPeriod},
		ADX:  s.ADXMin.IsPositive(),
	}
}

// diff returns fast-slow for a row, and false while either EMA is warming up.
func (s *EMACross) diff(r market.Row) (decimal.Decimal, bool) {
	fast, ok := r.Column(market.EMAColumn(s.FastPeriod))
	if !ok {
		return decimal.Zero, false
	}
	slow, ok := r.Column(market.EMAColumn(s.SlowPeriod))
	if !ok {
		return decimal.Zero, false
	}
	return fast.Sub(slow), true
}

func (s *EMACross) OnStep(rc *backtest.RunContext, snap market.Snapshot) (*trade.Trade, error) {
	rows := snap.Rows(snap.Primary)
	if len(rows) < 2 {
		return nil, nil
	}
	prev, ok := s.diff(rows[len(rows)-2])
	if !ok {
		return nil, nil
	}
	cur, ok := s.diff(rows[len(rows)-1])
	if !ok {
		return nil, nil
	}

	c, err := snap.LastCandle(snap.Primary, market.Requirements{ADX: s.ADXMin.IsPositive()})
	if errors.Is(err, market.ErrMissingIndicator) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.ADX != nil && c.ADX.LessThan(s.ADXMin) {
		return nil, nil
	}
	stop := s.StopPips.Mul(rc.Pip)
	target := stop.Mul(s.RR)

	switch {
	case cur.IsPositive() && !prev.IsPositive():
		return s.open(trade.MarketBuy, c, c.Close.Sub(stop), c.Close.Add(target), "BullCross")
	case cur.IsNegative() && !prev.IsNegative():
		return s.open(trade.MarketSell, c, c.Close.Add(stop), c.Close.Sub(target), "BearCross")
	}
	return nil, nil
}

func (s *EMACross) open(kind trade.OrderKind, c market.Candle, sl, tp decimal.Decimal, signal string) (*trade.Trade, error) {
	t, err := trade.NewMarket(kind, c.Close, sl, tp, c.Time)
	if err != nil {
		return nil, err
	}
	t.Comment = signal
	return t, nil
}
