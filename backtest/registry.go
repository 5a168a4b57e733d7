package backtest

import (
	"fmt"

	"github.com/rustyeddy/backtester/trade"
)

// Registry holds every trade of a run in registration order, keyed by entry
// time and order kind. Closed trades stay for reporting.
type Registry struct {
	order []*trade.Trade
	byKey map[trade.Key]*trade.Trade
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[trade.Key]*trade.Trade)}
}

// Add registers t. A second trade with the same key is refused.
func (r *Registry) Add(t *trade.Trade) error {
	k := t.Key()
	if _, ok := r.byKey[k]; ok {
		return fmt.Errorf("registry: duplicate trade %s", k)
	}
	r.byKey[k] = t
	r.order = append(r.order, t)
	return nil
}

func (r *Registry) Get(k trade.Key) (*trade.Trade, bool) {
	t, ok := r.byKey[k]
	return t, ok
}

func (r *Registry) Len() int { return len(r.order) }

// All returns the trades in registration order.
func (r *Registry) All() []*trade.Trade {
	out := make([]*trade.Trade, len(r.order))
	copy(out, r.order)
	return out
}

// Open returns pending and active trades in registration order.
func (r *Registry) Open() []*trade.Trade {
	var out []*trade.Trade
	for _, t := range r.order {
		if t.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) Count(s trade.Status) int {
	n := 0
	for _, t := range r.order {
		if t.Status() == s {
			n++
		}
	}
	return n
}

// HasActive reports whether any trade is filled and open.
func (r *Registry) HasActive() bool {
	for _, t := range r.order {
		if t.Status() == trade.Active {
			return true
		}
	}
	return false
}

// PurgePending drops orders that never triggered and returns how many.
func (r *Registry) PurgePending() int {
	kept := r.order[:0]
	n := 0
	for _, t := range r.order {
		if t.Status() == trade.Pending {
			delete(r.byKey, t.Key())
			n++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(r.order); i++ {
		r.order[i] = nil
	}
	r.order = kept
	return n
}
