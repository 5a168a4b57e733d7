package market

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMissingIndicator is returned when a candle is built with an indicator
// requirement that the source row does not carry.
var ErrMissingIndicator = errors.New("missing indicator column")

// Indicator column names written by the enrichment step and read back here.
const (
	ColUpperBollinger  = "upper_bollinger"
	ColMiddleBollinger = "middle_bollinger"
	ColLowerBollinger  = "lower_bollinger"
	ColRSI             = "RSI"
	ColADX             = "ADX"
)

// EMAColumn returns the column name holding the EMA of the given period.
func EMAColumn(period int) string {
	return "EMA" + strconv.Itoa(period)
}

// Requirements lists the indicator fields a caller needs on a Candle.
type Requirements struct {
	EMAs      []int
	Bollinger bool
	RSI       bool
	ADX       bool
}

// Bollinger holds the three bands of a Bollinger envelope.
type Bollinger struct {
	Upper  decimal.Decimal
	Middle decimal.Decimal
	Lower  decimal.Decimal
}

// Candle is one bar of a price series plus the indicator values requested
// when it was built. Body and Bullish are computed once by NewCandle.
type Candle struct {
	Time  time.Time
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal

	Body    decimal.Decimal
	Bullish bool

	EMAs      map[int]decimal.Decimal
	Bollinger *Bollinger
	RSI       *decimal.Decimal
	ADX       *decimal.Decimal
}

// NewCandle builds a Candle from a source row. Every indicator named in req
// must be present in the row; nothing is substituted.
func NewCandle(row Row, req Requirements) (Candle, error) {
	body := row.Close.Sub(row.Open)
	c := Candle{
		Time:    row.Time,
		Open:    row.Open,
		High:    row.High,
		Low:     row.Low,
		Close:   row.Close,
		Body:    body,
		Bullish: body.Sign() >= 0,
	}

	if len(req.EMAs) > 0 {
		c.EMAs = make(map[int]decimal.Decimal, len(req.EMAs))
		for _, p := range req.EMAs {
			v, err := row.column(EMAColumn(p))
			if err != nil {
				return Candle{}, err
			}
			c.EMAs[p] = v
		}
	}

	if req.Bollinger {
		up, err := row.column(ColUpperBollinger)
		if err != nil {
			return Candle{}, err
		}
		mid, err := row.column(ColMiddleBollinger)
		if err != nil {
			return Candle{}, err
		}
		low, err := row.column(ColLowerBollinger)
		if err != nil {
			return Candle{}, err
		}
		c.Bollinger = &Bollinger{Upper: up, Middle: mid, Lower: low}
	}

	if req.RSI {
		v, err := row.column(ColRSI)
		if err != nil {
			return Candle{}, err
		}
		c.RSI = &v
	}

	if req.ADX {
		v, err := row.column(ColADX)
		if err != nil {
			return Candle{}, err
		}
		c.ADX = &v
	}

	return c, nil
}

// EMA returns the EMA value for period, if it was requested.
func (c Candle) EMA(period int) (decimal.Decimal, bool) {
	v, ok := c.EMAs[period]
	return v, ok
}

// Engulfs reports whether c is an engulfing candle relative to prev: opposite
// direction, closing beyond prev's extreme.
func (c Candle) Engulfs(prev Candle) bool {
	switch {
	case c.Bullish && !prev.Bullish:
		return c.Close.GreaterThan(prev.High)
	case !c.Bullish && prev.Bullish:
		return c.Close.LessThan(prev.Low)
	}
	return false
}

// Rejection reports rejection wicks longer than min on the upper and lower
// side of the body.
func (c Candle) Rejection(min decimal.Decimal) (upper, lower bool) {
	top, bottom := c.Close, c.Open
	if !c.Bullish {
		top, bottom = c.Open, c.Close
	}
	upper = c.High.Sub(top).GreaterThan(min)
	lower = bottom.Sub(c.Low).GreaterThan(min)
	return upper, lower
}

// IsDoji reports a small body (|body| <= bodyMax) with at least one rejection
// wick longer than minRejection.
func (c Candle) IsDoji(bodyMax, minRejection decimal.Decimal) bool {
	upper, lower := c.Rejection(minRejection)
	return (upper || lower) && c.Body.Abs().LessThanOrEqual(bodyMax)
}

func (c Candle) String() string {
	return fmt.Sprintf("%s O:%s H:%s L:%s C:%s",
		c.Time.UTC().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
}
