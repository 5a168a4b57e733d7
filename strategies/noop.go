package strategies

import (
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
)

// Noop never trades. Useful to check data and alignment.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) OnStep(*backtest.RunContext, market.Snapshot) (*trade.Trade, error) {
	return nil, nil
}
