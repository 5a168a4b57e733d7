package indicators

import (
	"fmt"
	"math"
)

// Bollinger is a streaming Bollinger envelope: a simple moving average with
// bands k population standard deviations above and below it.
type Bollinger struct {
	ma *SimpleMA
	k  float64
}

func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{ma: NewMA(period), k: k}
}

func (b *Bollinger) Name() string {
	return fmt.Sprintf("BB(%d,%g)", b.ma.period, b.k)
}

func (b *Bollinger) Warmup() int      { return b.ma.Warmup() }
func (b *Bollinger) Reset()           { b.ma.Reset() }
func (b *Bollinger) Update(c float64) { b.ma.Update(c) }
func (b *Bollinger) Ready() bool      { return b.ma.Ready() }

// Value returns the middle band.
func (b *Bollinger) Value() float64 {
	return b.ma.Value()
}

// Bands returns upper, middle and lower. All are 0 before warmup.
func (b *Bollinger) Bands() (upper, middle, lower float64) {
	if !b.Ready() {
		return 0, 0, 0
	}
	middle = b.ma.Value()
	variance := 0.0
	for _, v := range b.ma.window {
		variance += (v - middle) * (v - middle)
	}
	sd := math.Sqrt(variance / float64(len(b.ma.window)))
	return middle + b.k*sd, middle, middle - b.k*sd
}
