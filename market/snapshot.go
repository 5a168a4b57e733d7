package market

import (
	"fmt"
	"time"
)

// Snapshot is the multi-timeframe view of the market at one replay step:
// for each timeframe, the bars that were complete at the close of the last
// primary bar.
type Snapshot struct {
	Step    int
	Primary Timeframe
	Frames  map[Timeframe][]Row
}

// Rows returns the visible bars for tf, oldest first.
func (s Snapshot) Rows(tf Timeframe) []Row {
	return s.Frames[tf]
}

// Last returns the most recent visible bar of tf.
func (s Snapshot) Last(tf Timeframe) (Row, bool) {
	rows := s.Frames[tf]
	if len(rows) == 0 {
		return Row{}, false
	}
	return rows[len(rows)-1], true
}

// LastCandle builds a Candle from the most recent visible bar of tf.
func (s Snapshot) LastCandle(tf Timeframe, req Requirements) (Candle, error) {
	row, ok := s.Last(tf)
	if !ok {
		return Candle{}, fmt.Errorf("snapshot step %d: no %s bars visible", s.Step, tf)
	}
	return NewCandle(row, req)
}

// Time is the open time of the current primary bar.
func (s Snapshot) Time() time.Time {
	row, _ := s.Last(s.Primary)
	return row.Time
}
