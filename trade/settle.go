package trade

import (
	"fmt"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/shopspring/decimal"
)

// Ledger is the account view settlement writes to.
type Ledger interface {
	Balance() decimal.Decimal
	Record(at time.Time, balanceAfter decimal.Decimal)
}

// FeePolicy is the fixed cost charged per settled trade, as a fraction of
// the amount risked.
type FeePolicy struct {
	Rate         decimal.Decimal `yaml:"rate"`
	OnTakeProfit bool            `yaml:"on_take_profit"`
	OnStopLoss   bool            `yaml:"on_stop_loss"`
}

// DefaultFees charges 5% of the risked amount on every close.
func DefaultFees() FeePolicy {
	return FeePolicy{
		Rate:         decimal.RequireFromString("0.05"),
		OnTakeProfit: true,
		OnStopLoss:   true,
	}
}

// Settlement is the balance change produced by closing one trade.
type Settlement struct {
	Reason        CloseReason
	At            time.Time
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Outcome       Outcome
}

// PnL is the signed balance change.
func (s Settlement) PnL() decimal.Decimal {
	return s.BalanceAfter.Sub(s.BalanceBefore)
}

// Settle closes an active trade for reason and books the result on ledger.
// With b the balance, r the risk fraction and f the fee rate:
//
//	take-profit:            b + b*r*RR - b*r*f
//	stop-loss at break-even: b - b*r*f
//	stop-loss:              b - b*r*StopRatio - b*r*f
//
// It is the only place a balance changes. Settling a closed trade returns
// ErrAlreadySettled and leaves the ledger untouched.
func Settle(t *Trade, reason CloseReason, at time.Time, risk decimal.Decimal, ledger Ledger, fees FeePolicy) (Settlement, error) {
	switch t.status {
	case Closed:
		return Settlement{}, fmt.Errorf("%w: %s", ErrAlreadySettled, t.Key())
	case Pending:
		return Settlement{}, fmt.Errorf("%w: %s is pending", ErrNotActive, t.Key())
	}
	if reason != StopLoss && reason != TakeProfit {
		return Settlement{}, fmt.Errorf("%w: cannot settle with reason %q", ErrInvalidTrade, reason)
	}

	if t.RiskReward.IsZero() {
		t.RiskReward = t.plannedRR()
	}

	before := ledger.Balance()
	risked := before.Mul(risk)
	fee := risked.Mul(fees.Rate)

	var after decimal.Decimal
	switch {
	case reason == TakeProfit:
		after = before.Add(risked.Mul(t.RiskReward))
		if fees.OnTakeProfit {
			after = after.Sub(fee)
		}
	case t.MovedToBreakEven:
		after = before
		if fees.OnStopLoss {
			after = after.Sub(fee)
		}
	default:
		after = before.Sub(risked.Mul(t.StopRatio))
		if fees.OnStopLoss {
			after = after.Sub(fee)
		}
	}

	t.status = Closed
	t.CloseReason = reason
	t.ExitTime = at
	t.BalanceBefore = before
	t.BalanceAfter = after
	t.outcome = Lost
	if after.GreaterThan(before) {
		t.outcome = Won
	}
	ledger.Record(at, after)

	return Settlement{
		Reason:        reason,
		At:            at,
		BalanceBefore: before,
		BalanceAfter:  after,
		Outcome:       t.outcome,
	}, nil
}

// StopModifier computes the stop ratio for a trade closed at the stop on
// candle c. The driver calls it before settlement.
type StopModifier func(t *Trade, c market.Candle) decimal.Decimal

// AdverseExcursion sizes the loss by how far the exit candle closed from
// entry relative to the original stop distance: |close-entry| / |entry-initial stop|.
func AdverseExcursion(t *Trade, c market.Candle) decimal.Decimal {
	risk := t.Entry.Sub(t.InitialStop).Abs()
	if risk.IsZero() {
		return decimal.NewFromInt(1)
	}
	return c.Close.Sub(t.Entry).Abs().Div(risk)
}
