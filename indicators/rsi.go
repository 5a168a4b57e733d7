package indicators

import (
	"fmt"
)

// RSI implements Wilder's Relative Strength Index.
// The first average gain/loss is the simple mean over period changes; after
// that both are Wilder-smoothed.
type RSI struct {
	period int

	prev     float64
	havePrev bool

	changes int
	avgGain float64
	avgLoss float64
}

func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

// Warmup is period + 1: one seed close plus period changes.
func (r *RSI) Warmup() int {
	return r.period + 1
}

func (r *RSI) Reset() {
	*r = RSI{period: r.period}
}

func (r *RSI) Update(close float64) {
	if !r.havePrev {
		r.prev = close
		r.havePrev = true
		return
	}

	delta := close - r.prev
	r.prev = close
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.changes++
	p := float64(r.period)
	if r.changes <= r.period {
		r.avgGain += gain
		r.avgLoss += loss
		if r.changes == r.period {
			r.avgGain /= p
			r.avgLoss /= p
		}
		return
	}
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
}

func (r *RSI) Ready() bool {
	return r.changes >= r.period
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
