// Package indicators computes the technical indicators strategies read from
// candle columns: EMAs, Bollinger bands and RSI.
package indicators

// Indicator computes a single streaming value from closing prices.
// It is deterministic: the same closes always produce the same values.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closing price.
	Update(close float64)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, or 0 before warmup completes.
	Value() float64
}
