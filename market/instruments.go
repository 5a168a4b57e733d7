package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

type InstrumentMeta struct {
	Name          string
	BaseCurrency  string
	QuoteCurrency string
	PipLocation   int
}

var Instruments = map[string]InstrumentMeta{
	"EUR_USD": {Name: "EUR_USD", BaseCurrency: "EUR", QuoteCurrency: "USD", PipLocation: -4},
	"GBP_USD": {Name: "GBP_USD", BaseCurrency: "GBP", QuoteCurrency: "USD", PipLocation: -4},
	"AUD_USD": {Name: "AUD_USD", BaseCurrency: "AUD", QuoteCurrency: "USD", PipLocation: -4},
	"USD_CHF": {Name: "USD_CHF", BaseCurrency: "USD", QuoteCurrency: "CHF", PipLocation: -4},
	"USD_JPY": {Name: "USD_JPY", BaseCurrency: "USD", QuoteCurrency: "JPY", PipLocation: -2},
	"EUR_JPY": {Name: "EUR_JPY", BaseCurrency: "EUR", QuoteCurrency: "JPY", PipLocation: -2},
}

// NormalizeSymbol maps broker spellings (EURUSD, EUR/USD, EURUSD-Z) onto the
// EUR_USD form used by Instruments.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "-."); i > 0 {
		s = s[:i]
	}
	s = strings.NewReplacer("/", "", "_", "").Replace(s)
	if len(s) == 6 {
		return s[:3] + "_" + s[3:]
	}
	return s
}

// LookupInstrument finds metadata for a symbol in any common spelling.
func LookupInstrument(symbol string) (InstrumentMeta, bool) {
	m, ok := Instruments[NormalizeSymbol(symbol)]
	return m, ok
}

// PipSize returns one pip in price units, defaulting to 0.0001 for unknown
// symbols.
func PipSize(symbol string) decimal.Decimal {
	loc := -4
	if m, ok := LookupInstrument(symbol); ok {
		loc = m.PipLocation
	}
	return decimal.New(1, int32(loc))
}
