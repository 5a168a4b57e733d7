package trade

import (
	"github.com/rustyeddy/backtester/market"
)

// ActivateIfTriggered fills a pending order when c trades through its entry.
// Buy-limit and sell-stop orders trigger when price falls to the entry,
// sell-limit and buy-stop when it rises to it. It reports whether the trade
// became active on this candle.
func (t *Trade) ActivateIfTriggered(c market.Candle) bool {
	if t.status != Pending {
		return false
	}

	var hit bool
	switch t.Kind {
	case BuyLimit, SellStop:
		hit = c.Low.LessThanOrEqual(t.Entry)
	case SellLimit, BuyStop:
		hit = c.High.GreaterThanOrEqual(t.Entry)
	}
	if hit {
		t.status = Active
	}
	return hit
}

// CheckClose compares the candle's range against the stop and the target.
// A level only counts once price trades through it; a bar that just touches
// the stop or the target leaves the trade open. The stop is checked first, so
// a bar crossing both closes at a loss.
func (t *Trade) CheckClose(c market.Candle) CloseReason {
	if t.status != Active {
		return NoClose
	}

	if t.Kind.IsBuy() {
		if c.Low.LessThan(t.StopLoss) {
			return StopLoss
		}
		if c.High.GreaterThan(t.TakeProfit) {
			return TakeProfit
		}
		return NoClose
	}

	if c.High.GreaterThan(t.StopLoss) {
		return StopLoss
	}
	if c.Low.LessThan(t.TakeProfit) {
		return TakeProfit
	}
	return NoClose
}

// MaybeMoveToBreakEven moves the stop to entry once the candle closes beyond
// the break-even trigger. It fires at most once per trade.
func (t *Trade) MaybeMoveToBreakEven(c market.Candle) bool {
	if t.status != Active || t.BreakEven == nil || t.MovedToBreakEven {
		return false
	}

	crossed := c.Close.LessThanOrEqual(*t.BreakEven)
	if t.Kind.IsBuy() {
		crossed = c.Close.GreaterThanOrEqual(*t.BreakEven)
	}
	if !crossed {
		return false
	}
	t.MovedToBreakEven = true
	t.StopLoss = t.Entry
	return true
}
