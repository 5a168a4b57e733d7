// Package trade holds the Trade entity and its lifecycle: activation of
// pending orders, stop/target checks, break-even management and settlement
// against an account ledger.
package trade

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownOrderKind = errors.New("unknown order kind")
	ErrInvalidTrade     = errors.New("invalid trade")
	ErrAlreadySettled   = errors.New("trade already settled")
	ErrNotActive        = errors.New("trade not active")
)

// OrderKind is the order type a strategy asked for.
type OrderKind string

const (
	MarketBuy  OrderKind = "market-buy"
	MarketSell OrderKind = "market-sell"
	BuyLimit   OrderKind = "buy-limit"
	SellLimit  OrderKind = "sell-limit"
	BuyStop    OrderKind = "buy-stop"
	SellStop   OrderKind = "sell-stop"
)

// ParseOrderKind validates a kind read from configuration or a strategy.
func ParseOrderKind(s string) (OrderKind, error) {
	k := OrderKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOrderKind, s)
	}
	return k, nil
}

func (k OrderKind) Valid() bool {
	switch k {
	case MarketBuy, MarketSell, BuyLimit, SellLimit, BuyStop, SellStop:
		return true
	}
	return false
}

// IsBuy reports whether the order opens a long position.
func (k OrderKind) IsBuy() bool {
	return k == MarketBuy || k == BuyLimit || k == BuyStop
}

// IsMarket reports whether the order fills immediately.
func (k OrderKind) IsMarket() bool {
	return k == MarketBuy || k == MarketSell
}

// Status is where a trade is in its lifecycle. A trade holds exactly one.
type Status int

const (
	Pending Status = iota
	Active
	Closed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is unknown until the trade closes.
type Outcome int

const (
	Unknown Outcome = iota
	Won
	Lost
)

func (o Outcome) String() string {
	switch o {
	case Won:
		return "won"
	case Lost:
		return "lost"
	}
	return "unknown"
}

// CloseReason says which bound closed a trade.
type CloseReason string

const (
	NoClose    CloseReason = ""
	StopLoss   CloseReason = "stop-loss"
	TakeProfit CloseReason = "take-profit"
)

// Trade is one order from signal to settlement. Prices are decimals in the
// instrument's quote currency.
type Trade struct {
	Kind       OrderKind
	Entry      decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal

	// BreakEven is the close price that moves the stop to entry. Nil disables it.
	BreakEven        *decimal.Decimal
	MovedToBreakEven bool

	RiskReward decimal.Decimal
	// StopRatio scales the loss on a stop-loss settlement. Constructors set it
	// to 1; zero books no loss beyond the fee.
	StopRatio decimal.Decimal

	Comment     string
	EntryTime   time.Time
	ExitTime    time.Time
	InitialStop decimal.Decimal

	CloseReason   CloseReason
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal

	status  Status
	outcome Outcome
}

// NewMarket creates an active market order.
func NewMarket(kind OrderKind, entry, stop, target decimal.Decimal, at time.Time) (*Trade, error) {
	if !kind.IsMarket() {
		return nil, fmt.Errorf("%w: %s is not a market order", ErrInvalidTrade, kind)
	}
	return newTrade(kind, entry, stop, target, at, Active)
}

// NewPending creates a limit or stop order that waits for its trigger.
func NewPending(kind OrderKind, entry, stop, target decimal.Decimal, at time.Time) (*Trade, error) {
	if kind.IsMarket() {
		return nil, fmt.Errorf("%w: %s is not a pending order", ErrInvalidTrade, kind)
	}
	return newTrade(kind, entry, stop, target, at, Pending)
}

func newTrade(kind OrderKind, entry, stop, target decimal.Decimal, at time.Time, st Status) (*Trade, error) {
	t := &Trade{
		Kind:        kind,
		Entry:       entry,
		StopLoss:    stop,
		TakeProfit:  target,
		InitialStop: stop,
		StopRatio:   decimal.NewFromInt(1),
		EntryTime:   at,
		status:      st,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if kind.IsMarket() {
		t.RiskReward = t.plannedRR()
	}
	return t, nil
}

func (t *Trade) Status() Status   { return t.status }
func (t *Trade) Outcome() Outcome { return t.outcome }

// IsOpen reports whether the trade still reacts to price: pending or active.
func (t *Trade) IsOpen() bool { return t.status != Closed }

// Validate rejects trades the lifecycle cannot handle: unknown kinds, a stop
// equal to entry, or bounds on the wrong side of entry.
func (t *Trade) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOrderKind, string(t.Kind))
	}
	if t.InitialStop.IsZero() || (t.Kind.IsMarket() && t.status == Pending) {
		return fmt.Errorf("%w: build trades with NewMarket or NewPending", ErrInvalidTrade)
	}
	if t.Entry.Sign() <= 0 {
		return fmt.Errorf("%w: entry %s must be positive", ErrInvalidTrade, t.Entry)
	}
	if t.StopLoss.Equal(t.Entry) {
		return fmt.Errorf("%w: stop equals entry %s", ErrInvalidTrade, t.Entry)
	}
	if t.Kind.IsBuy() {
		if !t.StopLoss.LessThan(t.Entry) || !t.TakeProfit.GreaterThan(t.Entry) {
			return fmt.Errorf("%w: %s needs stop < entry < target, got %s/%s/%s",
				ErrInvalidTrade, t.Kind, t.StopLoss, t.Entry, t.TakeProfit)
		}
	} else {
		if !t.StopLoss.GreaterThan(t.Entry) || !t.TakeProfit.LessThan(t.Entry) {
			return fmt.Errorf("%w: %s needs target < entry < stop, got %s/%s/%s",
				ErrInvalidTrade, t.Kind, t.TakeProfit, t.Entry, t.StopLoss)
		}
	}
	if t.StopRatio.IsNegative() {
		return fmt.Errorf("%w: negative stop ratio %s", ErrInvalidTrade, t.StopRatio)
	}
	return nil
}

// plannedRR is |target-entry| / |entry-initial stop|.
func (t *Trade) plannedRR() decimal.Decimal {
	risk := t.Entry.Sub(t.InitialStop).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return t.TakeProfit.Sub(t.Entry).Abs().Div(risk)
}

// Key identifies a trade in the registry.
type Key struct {
	EntryTime time.Time
	Kind      OrderKind
}

func (t *Trade) Key() Key {
	return Key{EntryTime: t.EntryTime.UTC(), Kind: t.Kind}
}

func (k Key) String() string {
	return k.EntryTime.Format(time.RFC3339) + "/" + string(k.Kind)
}

func (t *Trade) String() string {
	return fmt.Sprintf("%s %s entry=%s sl=%s tp=%s rr=%s %s",
		t.EntryTime.UTC().Format(time.RFC3339), t.Kind, t.Entry, t.StopLoss, t.TakeProfit,
		t.RiskReward.StringFixed(2), t.status)
}
