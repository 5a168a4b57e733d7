package indicators

import (
	"fmt"

	"github.com/rustyeddy/backtester/market"
	"github.com/shopspring/decimal"
)

// Places is the rounding applied when float indicator values are written
// back as decimal columns.
const Places = 8

// Config selects which indicator columns Enrich writes. A zero period
// disables that indicator.
type Config struct {
	EMAs            []int   `yaml:"emas"`
	BollingerPeriod int     `yaml:"bollinger_period"`
	BollingerK      float64 `yaml:"bollinger_k"`
	RSIPeriod       int     `yaml:"rsi_period"`
	ADXPeriod       int     `yaml:"adx_period,omitempty"`
}

// DefaultConfig matches the columns the bundled strategies read.
func DefaultConfig() Config {
	return Config{
		EMAs:            []int{50, 200},
		BollingerPeriod: 20,
		BollingerK:      2,
		RSIPeriod:       14,
	}
}

// column binds a close-driven indicator to the row column it fills.
// Bollinger writes three columns and ADX reads high/low, so both are driven
// separately.
type column struct {
	name string
	ind  Indicator
}

// Enrich computes the configured indicators over s and stores them as row
// columns. Rows inside an indicator's warmup get no column for it, so
// strategies asking for it fail with market.ErrMissingIndicator rather than
// reading a half-formed value.
func Enrich(s *market.Series, cfg Config) error {
	var cols []column
	for _, p := range cfg.EMAs {
		if p <= 0 {
			return fmt.Errorf("enrich: EMA period must be positive, got %d", p)
		}
		cols = append(cols, column{name: market.EMAColumn(p), ind: NewEMA(p)})
	}
	if cfg.RSIPeriod > 0 {
		cols = append(cols, column{name: market.ColRSI, ind: NewRSI(cfg.RSIPeriod)})
	}

	var bb *Bollinger
	if cfg.BollingerPeriod > 0 {
		bb = NewBollinger(cfg.BollingerPeriod, cfg.BollingerK)
	}
	var adx *ADX
	if cfg.ADXPeriod > 0 {
		adx = NewADX(cfg.ADXPeriod)
	}

	for i := range s.Rows {
		r := &s.Rows[i]
		c := r.Close.InexactFloat64()

		for _, col := range cols {
			col.ind.Update(c)
			if col.ind.Ready() {
				r.SetColumn(col.name, toDecimal(col.ind.Value()))
			}
		}
		if bb != nil {
			bb.Update(c)
			if bb.Ready() {
				up, mid, low := bb.Bands()
				r.SetColumn(market.ColUpperBollinger, toDecimal(up))
				r.SetColumn(market.ColMiddleBollinger, toDecimal(mid))
				r.SetColumn(market.ColLowerBollinger, toDecimal(low))
			}
		}
		if adx != nil {
			adx.Update(r.High.InexactFloat64(), r.Low.InexactFloat64(), c)
			if adx.Ready() {
				r.SetColumn(market.ColADX, toDecimal(adx.Value()))
			}
		}
	}
	return nil
}

func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(Places)
}
