package strategies

import (
	"errors"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
)

// BollingerRSI fades a bar that opened and closed outside the Bollinger
// bands while RSI is stretched. It manages its own exits when the driver
// delegates management.
type BollingerRSI struct {
	Overbought decimal.Decimal
	Oversold   decimal.Decimal
	StopPips   decimal.Decimal
	// Reward is the target distance in multiples of the stop.
	Reward  decimal.Decimal
	Hours   Hours
	Comment string
}

func NewBollingerRSI() *BollingerRSI {
	return &BollingerRSI{
		Overbought: decimal.NewFromInt(70),
		Oversold:   decimal.NewFromInt(30),
		StopPips:   decimal.NewFromInt(2),
		Reward:     decimal.NewFromInt(2),
		Hours:      Hours{From: 9, To: 17},
		Comment:    "RSI_bot",
	}
}

func newBollingerRSI(p Params) (backtest.Strategy, error) {
	s := NewBollingerRSI()
	var err error
	if s.Overbought, err = p.Decimal("overbought", s.Overbought); err != nil {
		return nil, err
	}
	if s.Oversold, err = p.Decimal("oversold", s.Oversold); err != nil {
		return nil, err
	}
	if !s.Oversold.LessThan(s.Overbought) {
		return nil, errors.New("bollinger-rsi oversold must be below overbought")
	}
	if s.StopPips, err = p.Decimal("stop_pips", s.StopPips); err != nil {
		return nil, err
	}
	if s.Reward, err = p.Decimal("reward", s.Reward); err != nil {
		return nil, err
	}
	if !s.StopPips.IsPositive() || !s.Reward.IsPositive() {
		return nil, errors.New("bollinger-rsi stop and reward must be positive")
	}
	if s.Hours, err = p.hours(s.Hours); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BollingerRSI) Name() string { return "bollinger-rsi" }

func (s *BollingerRSI) Requirements() market.Requirements {
	return market.Requirements{Bollinger: true, RSI: true}
}

func (s *BollingerRSI) OnStep(rc *backtest.RunContext, snap market.Snapshot) (*trade.Trade, error) {
	c, err := snap.LastCandle(snap.Primary, s.Requirements())
	if err != nil {
		return nil, err
	}
	if !s.Hours.Contains(c.Time.Hour()) {
		return nil, nil
	}

	stop := s.StopPips.Mul(rc.Pip)
	target := stop.Mul(s.Reward)
	bb, rsi := c.Bollinger, *c.RSI

	var (
		kind   trade.OrderKind
		sl, tp decimal.Decimal
	)
	switch {
	case rsi.GreaterThan(s.Overbought) && c.Close.GreaterThan(bb.Upper) && c.Open.GreaterThan(bb.Upper):
		kind, sl, tp = trade.MarketSell, c.Close.Add(stop), c.Close.Sub(target)
	case rsi.LessThan(s.Oversold) && c.Close.LessThan(bb.Lower) && c.Open.LessThan(bb.Lower):
		kind, sl, tp = trade.MarketBuy, c.Close.Sub(stop), c.Close.Add(target)
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

// ManageTrade closes at the stop when the bar touches it, otherwise at the
// target when the bar trades through it. The reward is fixed against the
// original stop distance when the target is hit.
func (s *BollingerRSI) ManageTrade(rc *backtest.RunContext, t *trade.Trade, snap market.Snapshot) (backtest.Decision, error) {
	c, err := snap.LastCandle(snap.Primary, market.Requirements{})
	if err != nil {
		return backtest.Decision{}, err
	}

	var stopHit, targetHit bool
	if t.Kind.IsBuy() {
		stopHit = c.Low.LessThanOrEqual(t.StopLoss)
		targetHit = c.High.GreaterThan(t.TakeProfit)
	} else {
		stopHit = c.High.GreaterThanOrEqual(t.StopLoss)
		targetHit = c.Low.LessThan(t.TakeProfit)
	}

	switch {
	case stopHit:
		return backtest.Decision{Closed: true, Reason: trade.StopLoss}, nil
	case targetHit:
		if risk := t.Entry.Sub(t.InitialStop).Abs(); risk.IsPositive() {
			t.RiskReward = t.TakeProfit.Sub(t.Entry).Abs().Div(risk)
		}
		return backtest.Decision{Closed: true, Reason: trade.TakeProfit}, nil
	}
	return backtest.Decision{}, nil
}
