package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one bar as delivered by the market-data collaborator: OHLC plus any
// named indicator columns. Time is the bar open time in UTC.
type Row struct {
	Time    time.Time
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Columns map[string]decimal.Decimal
}

// Column returns a named indicator value.
func (r Row) Column(name string) (decimal.Decimal, bool) {
	v, ok := r.Columns[name]
	return v, ok
}

// SetColumn stores a named indicator value on the row.
func (r *Row) SetColumn(name string, v decimal.Decimal) {
	if r.Columns == nil {
		r.Columns = make(map[string]decimal.Decimal)
	}
	r.Columns[name] = v
}

func (r Row) column(name string) (decimal.Decimal, error) {
	v, ok := r.Columns[name]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w %q at %s", ErrMissingIndicator, name, r.Time.Format(time.RFC3339))
	}
	return v, nil
}

// Series is an ordered bar sequence for one timeframe.
type Series struct {
	Instrument string
	Timeframe  Timeframe
	Source     string
	Rows       []Row
}

func (s *Series) Len() int { return len(s.Rows) }

// CloseTime is the instant bar i completes.
func (s *Series) CloseTime(i int) time.Time {
	return s.Rows[i].Time.Add(s.Timeframe.Duration())
}

// Validate checks that timestamps are aligned to the timeframe and strictly
// increasing.
func (s *Series) Validate() error {
	if !s.Timeframe.Valid() {
		return fmt.Errorf("series %s: invalid timeframe %d", s.Source, s.Timeframe)
	}
	tf := int64(s.Timeframe)
	for i, r := range s.Rows {
		u := r.Time.Unix()
		if s.Timeframe < W1 && u%tf != 0 {
			return fmt.Errorf("series %s: row %d at %s not aligned to %s", s.Source, i, r.Time.Format(time.RFC3339), s.Timeframe)
		}
		if i > 0 && !r.Time.After(s.Rows[i-1].Time) {
			return fmt.Errorf("series %s: row %d at %s not after %s", s.Source, i,
				r.Time.Format(time.RFC3339), s.Rows[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Gap is a run of missing bars between two present ones.
type Gap struct {
	AfterIdx int    // index of the last bar before the gap
	Len      int    // number of missing intervals
	Kind     string // weekend, suspicious or minor
}

// Gaps lists holes in the series. The aligner assumes gap-free input, so
// callers usually log these before a run.
func (s *Series) Gaps() []Gap {
	var gaps []Gap
	step := s.Timeframe.Duration()
	for i := 1; i < len(s.Rows); i++ {
		delta := s.Rows[i].Time.Sub(s.Rows[i-1].Time)
		if delta <= step {
			continue
		}
		missing := int(delta/step) - 1
		gaps = append(gaps, Gap{
			AfterIdx: i - 1,
			Len:      missing,
			Kind:     s.classifyGap(s.Rows[i-1].Time.Add(step), missing),
		})
	}
	return gaps
}

func (s *Series) classifyGap(start time.Time, length int) string {
	gapMinutes := length * s.Timeframe.Minutes()
	wd := start.UTC().Weekday()

	// Weekend-ish if gap >= 24h and starts Fri/Sat/Sun (UTC heuristic)
	if gapMinutes >= 60*24 {
		if wd == time.Friday || wd == time.Saturday || wd == time.Sunday {
			return "weekend"
		}
		return "suspicious"
	}
	if gapMinutes >= 10 {
		return "suspicious"
	}
	return "minor"
}

// Resample aggregates s into the coarser timeframe tf, which must be one of
// the Supported timeframes. Buckets come from tf.BucketStart; open comes from
// the first bar, close from the last, high/low are the extremes. Indicator
// columns are dropped.
func Resample(s *Series, tf Timeframe) (*Series, error) {
	if !tf.IsSupported() || !s.Timeframe.Valid() || tf < s.Timeframe || tf%s.Timeframe != 0 {
		return nil, fmt.Errorf("resample: cannot build %s from %s", tf, s.Timeframe)
	}

	out := &Series{
		Instrument: s.Instrument,
		Timeframe:  tf,
		Source:     s.Source + " " + tf.String(),
	}

	var cur *Row
	for _, r := range s.Rows {
		bucket := tf.BucketStart(r.Time)
		if cur != nil && cur.Time.Equal(bucket) {
			if r.High.GreaterThan(cur.High) {
				cur.High = r.High
			}
			if r.Low.LessThan(cur.Low) {
				cur.Low = r.Low
			}
			cur.Close = r.Close
			continue
		}
		out.Rows = append(out.Rows, Row{
			Time:  bucket,
			Open:  r.Open,
			High:  r.High,
			Low:   r.Low,
			Close: r.Close,
		})
		cur = &out.Rows[len(out.Rows)-1]
	}
	return out, nil
}
