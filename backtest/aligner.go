package backtest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/backtester/market"
)

// ErrEndOfData means fewer than lookback primary bars remain. It ends a run
// normally.
var ErrEndOfData = errors.New("end of data")

// Aligner cuts synchronized multi-timeframe windows out of historical
// series. Step i shows primary bars [i, i+lookback) and, for each coarser
// timeframe, only the bars that had closed by the close of the last primary
// bar in that window.
type Aligner struct {
	primary     *market.Series
	secondaries []*market.Series
	lookback    int
}

// NewAligner checks that every secondary series is strictly coarser than the
// primary and that no timeframe appears twice.
func NewAligner(primary *market.Series, secondaries []*market.Series, lookback int) (*Aligner, error) {
	if primary == nil {
		return nil, errors.New("aligner: primary series is required")
	}
	if lookback <= 0 {
		return nil, fmt.Errorf("aligner: lookback must be positive, got %d", lookback)
	}
	seen := map[market.Timeframe]bool{primary.Timeframe: true}
	for _, s := range secondaries {
		if s == nil {
			return nil, errors.New("aligner: nil secondary series")
		}
		if s.Timeframe <= primary.Timeframe {
			return nil, fmt.Errorf("aligner: secondary %s is not coarser than primary %s", s.Timeframe, primary.Timeframe)
		}
		if seen[s.Timeframe] {
			return nil, fmt.Errorf("aligner: timeframe %s given twice", s.Timeframe)
		}
		seen[s.Timeframe] = true
	}
	return &Aligner{primary: primary, secondaries: secondaries, lookback: lookback}, nil
}

// Timeframes lists the primary timeframe first, then the secondaries.
func (a *Aligner) Timeframes() []market.Timeframe {
	tfs := []market.Timeframe{a.primary.Timeframe}
	for _, s := range a.secondaries {
		tfs = append(tfs, s.Timeframe)
	}
	return tfs
}

// Steps is the number of windows the primary series can fill.
func (a *Aligner) Steps() int {
	n := a.primary.Len() - a.lookback + 1
	if n < 0 {
		return 0
	}
	return n
}

// Step returns the snapshot for step i. Slices share memory with the source
// series but are capped so appending to them cannot expose later bars.
func (a *Aligner) Step(i int) (market.Snapshot, error) {
	if i < 0 {
		return market.Snapshot{}, fmt.Errorf("aligner: negative step %d", i)
	}
	if i+a.lookback > a.primary.Len() {
		return market.Snapshot{}, ErrEndOfData
	}

	end := i + a.lookback
	window := a.primary.Rows[i:end:end]
	first := window[0].Time
	closeT := window[len(window)-1].Time.Add(a.primary.Timeframe.Duration())

	frames := make(map[market.Timeframe][]market.Row, 1+len(a.secondaries))
	frames[a.primary.Timeframe] = window
	for _, s := range a.secondaries {
		frames[s.Timeframe] = visible(s, first, closeT)
	}

	return market.Snapshot{Step: i, Primary: a.primary.Timeframe, Frames: frames}, nil
}

// visible returns the bars of s that cover [from, until) and had closed by
// until. A bar closes at open + period; one still forming at until is
// withheld, as is one that closed at or before from.
func visible(s *market.Series, from, until time.Time) []market.Row {
	q := s.Timeframe.Duration()
	n := len(s.Rows)
	closesAfter := func(t time.Time) int {
		return sort.Search(n, func(j int) bool {
			return s.Rows[j].Time.Add(q).After(t)
		})
	}

	begin := closesAfter(from)
	end := closesAfter(until)
	if end <= begin {
		return nil
	}
	return s.Rows[begin:end:end]
}
