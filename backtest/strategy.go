package backtest

import (
	"github.com/rustyeddy/backtester/account"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/trade"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Strategy produces trade signals. OnStep is called with the aligned
// snapshot of each step and returns nil when there is no signal. Trades must
// be built with trade.NewMarket or trade.NewPending; a zero EntryTime is set
// to the current primary bar.
type Strategy interface {
	Name() string
	OnStep(rc *RunContext, snap market.Snapshot) (*trade.Trade, error)
}

// Decision is a strategy's verdict on one of its active trades.
type Decision struct {
	Closed bool
	Reason trade.CloseReason
}

// TradeManager is implemented by strategies that manage their own exits.
// With delegated management enabled it replaces the built-in stop, target
// and break-even checks. It may adjust the trade (stop, StopRatio) but
// settlement still goes through the driver.
type TradeManager interface {
	ManageTrade(rc *RunContext, t *trade.Trade, snap market.Snapshot) (Decision, error)
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(rc *RunContext, snap market.Snapshot) (*trade.Trade, error)

func (f StrategyFunc) Name() string { return "func" }

func (f StrategyFunc) OnStep(rc *RunContext, snap market.Snapshot) (*trade.Trade, error) {
	return f(rc, snap)
}

// RunContext is what a strategy may know about the run it is part of. One is
// created per Run and discarded with it.
type RunContext struct {
	RunID      string
	Symbol     string
	Timeframes []market.Timeframe
	Risk       decimal.Decimal
	Pip        decimal.Decimal
	Ledger     account.View
	Log        *zap.Logger

	registry *Registry
}

// ActiveTrades counts trades currently exposed to the market.
func (rc *RunContext) ActiveTrades() int {
	return rc.registry.Count(trade.Active)
}

// PendingTrades counts orders waiting for their trigger.
func (rc *RunContext) PendingTrades() int {
	return rc.registry.Count(trade.Pending)
}
