// Package account tracks the simulated balance of one backtest run.
package account

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EquityPoint is the balance right after a settlement.
type EquityPoint struct {
	Time    time.Time       `yaml:"time"`
	Balance decimal.Decimal `yaml:"balance"`
}

// Ledger is the account state of one run. Only trade settlement writes to it.
type Ledger struct {
	initial       decimal.Decimal
	balance       decimal.Decimal
	highWater     decimal.Decimal
	maxDrawdown   decimal.Decimal
	maxDrawdownPc decimal.Decimal
	ddSet         bool
	history       []EquityPoint
}

// NewLedger opens an account with the given starting balance.
func NewLedger(initial decimal.Decimal) *Ledger {
	return &Ledger{
		initial:   initial,
		balance:   initial,
		highWater: initial,
	}
}

func (l *Ledger) Initial() decimal.Decimal   { return l.initial }
func (l *Ledger) Balance() decimal.Decimal   { return l.balance }
func (l *Ledger) HighWater() decimal.Decimal { return l.highWater }

// Record books a new balance. The high-water mark rises when exceeded and the
// stored max drawdown only changes when the new peak-to-balance percentage is
// larger than the one already held. A non-positive peak leaves drawdown alone.
func (l *Ledger) Record(at time.Time, balanceAfter decimal.Decimal) {
	l.balance = balanceAfter
	l.history = append(l.history, EquityPoint{Time: at, Balance: balanceAfter})

	if balanceAfter.GreaterThan(l.highWater) {
		l.highWater = balanceAfter
	}
	if !l.highWater.IsPositive() {
		return
	}

	amount := l.highWater.Sub(balanceAfter)
	pct := amount.Div(l.highWater).Mul(hundred)
	if !l.ddSet || pct.GreaterThan(l.maxDrawdownPc) {
		l.maxDrawdown = amount
		l.maxDrawdownPc = pct
		l.ddSet = true
	}
}

// MaxDrawdown returns the largest peak-to-balance drop seen, as an amount
// and as a percentage of the peak. ok is false until a drawdown could be
// computed.
func (l *Ledger) MaxDrawdown() (amount, pct decimal.Decimal, ok bool) {
	return l.maxDrawdown, l.maxDrawdownPc, l.ddSet
}

// ReturnPct is the change from the initial balance in percent.
func (l *Ledger) ReturnPct() (decimal.Decimal, bool) {
	if l.initial.IsZero() {
		return decimal.Zero, false
	}
	return l.balance.Sub(l.initial).Div(l.initial).Mul(hundred), true
}

// History returns a copy of the equity curve.
func (l *Ledger) History() []EquityPoint {
	out := make([]EquityPoint, len(l.history))
	copy(out, l.history)
	return out
}

// View is the read-only face of a Ledger handed to strategies.
type View interface {
	Initial() decimal.Decimal
	Balance() decimal.Decimal
	HighWater() decimal.Decimal
	MaxDrawdown() (amount, pct decimal.Decimal, ok bool)
}

var _ View = (*Ledger)(nil)
