package strategies

import (
	"errors"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
)

// EMABias buys above the EMA and sells below it with a fixed pip stop and
// target, during trading hours only. One market order per signal.
type EMABias struct {
	// Periods are the EMAs the strategy needs; the first one sets the bias.
	Periods    []int
	StopPips   decimal.Decimal
	TargetPips decimal.Decimal
	Hours      Hours
	Comment    string
}

// NewEMABias returns the strategy with its defaults: EMA 25 (and 50 loaded),
// 3 pip stop, 6 pip target, 09:00-17:59.
func NewEMABias() *EMABias {
	return &EMABias{
		Periods:    []int{25, 50},
		StopPips:   decimal.NewFromInt(3),
		TargetPips: decimal.NewFromInt(6),
		Hours:      Hours{From: 9, To: 17},
		Comment:    "my_bot_trade",
	}
}

func newEMABias(p Params) (backtest.Strategy, error) {
	s := NewEMABias()
	var err error
	if s.Periods, err = p.Ints("ema", s.Periods); err != nil {
		return nil, err
	}
	if len(s.Periods) == 0 || s.Periods[0] <= 0 {
		return nil, errors.New("ema-bias needs a positive EMA period")
	}
	if s.StopPips, err = p.Decimal("stop_pips", s.StopPips); err != nil {
		return nil, err
	}
	if s.TargetPips, err = p.Decimal("target_pips", s.TargetPips); err != nil {
		return nil, err
	}
	if !s.StopPips.IsPositive() || !s.TargetPips.IsPositive() {
		return nil, errors.New("ema-bias stop and target must be positive")
	}
	if s.Hours, err = p.hours(s.Hours); err != nil {
		return nil, err
	}
	if c, ok := p["comment"]; ok {
		s.Comment = c
	}
	return s, nil
}

func (s *EMABias) Name() string { return "ema-bias" }

func (s *EMABias) Requirements() market.Requirements {
	return market.Requirements{EMAs: s.Periods}
}

func (s *EMABias) OnStep(rc *backtest.RunContext, snap market.Snapshot) (*trade.Trade, error) {
	c, err := snap.LastCandle(snap.Primary, s.Requirements())
	if err != nil {
		return nil, err
	}
	if !s.Hours.Contains(c.Time.Hour()) {
		return nil, nil
	}

	ema, _ := c.EMA(s.Periods[0])
	stop := s.StopPips.Mul(rc.Pip)
	target := s.TargetPips.Mul(rc.Pip)

	var (
		kind   trade.OrderKind
		sl, tp decimal.Decimal
	)
	switch c.Close.Cmp(ema) {
	case 1:
		kind, sl, tp = trade.MarketBuy, c.Close.Sub(stop), c.Close.Add(target)
	case -1:
		kind, sl, tp = trade.MarketSell, c.Close.Add(stop), c.Close.Sub(target)
	default:
		return nil, nil
	}

	t, err := trade.NewMarket(kind, c.Close, sl, tp, c.Time)
	if err != nil {
		return nil, err
	}
	t.Comment = s.Comment
	return t, nil
}
