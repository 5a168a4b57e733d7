// Package strategies holds the bundled strategies and the name registry the
// CLI and config use to pick one.
package strategies

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/shopspring/decimal"
)

// Params are the string key/values a strategy is configured with. Lists are
// comma separated.
type Params map[string]string

// Factory builds a fresh strategy for one run.
type Factory func(Params) (backtest.Strategy, error)

// Requirer is implemented by strategies that read indicator columns. The
// caller enriches the series with at least these before a run.
type Requirer interface {
	Requirements() market.Requirements
}

var registry = make(map[string]Factory)

// Register adds a factory under name. Names are case insensitive; a second
// registration replaces the first.
func Register(name string, f Factory) {
	registry[normalize(name)] = f
}

// New builds the strategy registered under name.
func New(name string, p Params) (backtest.Strategy, error) {
	f, ok := registry[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	s, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return s, nil
}

// Names lists the registered strategies in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func init() {
	Register("noop", func(Params) (backtest.Strategy, error) { return Noop{}, nil })
	Register("ema-bias", newEMABias)
	Register("bollinger-rsi", newBollingerRSI)
	Register("ema-cross", newEMACross)
}

// Int returns the integer at key or def when unset.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return n, nil
}

// Ints returns the comma separated integers at key or def when unset.
func (p Params) Ints(key string, def []int) ([]int, error) {
	v, ok := p[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	var out []int
	for _, f := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", key, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Decimal returns the decimal at key or def when unset.
func (p Params) Decimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := p[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("param %s: %w", key, err)
	}
	return d, nil
}

// Hours is an inclusive window of UTC hours a strategy may open trades in.
type Hours struct {
	From int
	To   int
}

// Contains reports whether hour h lies in the window.
func (w Hours) Contains(h int) bool {
	return h >= w.From && h <= w.To
}

func (p Params) hours(def Hours) (Hours, error) {
	from, err := p.Int("hour_from", def.From)
	if err != nil {
		return Hours{}, err
	}
	to, err := p.Int("hour_to", def.To)
	if err != nil {
		return Hours{}, err
	}
	if from < 0 || to > 23 || from > to {
		return Hours{}, fmt.Errorf("bad trading hours %d-%d", from, to)
	}
	return Hours{From: from, To: to}, nil
}
