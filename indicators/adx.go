package indicators

import (
	"fmt"
	"math"
)

// ADX is Wilder's Average Directional Index over high/low/close.
//
// Warmup is 2N bars: N periods seed the smoothed TR and +DM/-DM, then N DX
// values seed the first ADX.
type ADX struct {
	period int

	prevH, prevL, prevC float64
	havePrev            bool

	periods int
	ready   bool
	adx     float64
	plusDI  float64
	minusDI float64
	lastDX  float64

	smTR      float64
	smPlusDM  float64
	smMinusDM float64

	dxSum   float64
	dxCount int
}

func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Name() string   { return fmt.Sprintf("ADX(%d)", a.period) }
func (a *ADX) Warmup() int    { return 2 * a.period }
func (a *ADX) Ready() bool    { return a.ready }
func (a *ADX) Value() float64 { return a.adx }

func (a *ADX) PlusDI() float64  { return a.plusDI }
func (a *ADX) MinusDI() float64 { return a.minusDI }
func (a *ADX) DX() float64      { return a.lastDX }

func (a *ADX) Reset() {
	*a = ADX{period: a.period}
}

// Update consumes the next closed bar.
func (a *ADX) Update(high, low, close float64) {
	if !a.havePrev {
		a.prevH, a.prevL, a.prevC = high, low, close
		a.havePrev = true
		return
	}

	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevC), math.Abs(low-a.prevC)))
	up := high - a.prevH
	down := a.prevL - low
	a.prevH, a.prevL, a.prevC = high, low, close

	var plusDM, minusDM float64
	if up > down && up > 0 {
		plusDM = up
	}
	if down > up && down > 0 {
		minusDM = down
	}

	a.periods++
	n := float64(a.period)
	if a.periods <= a.period {
		a.smTR += tr
		a.smPlusDM += plusDM
		a.smMinusDM += minusDM
		if a.periods == a.period {
			a.direction()
			a.dxSum, a.dxCount = a.lastDX, 1
		}
		return
	}

	a.smTR = a.smTR - a.smTR/n + tr
	a.smPlusDM = a.smPlusDM - a.smPlusDM/n + plusDM
	a.smMinusDM = a.smMinusDM - a.smMinusDM/n + minusDM
	a.direction()

	if a.ready {
		a.adx = (a.adx*(n-1) + a.lastDX) / n
		return
	}
	a.dxSum += a.lastDX
	a.dxCount++
	if a.dxCount >= a.period {
		a.adx = a.dxSum / n
		a.ready = true
	}
}

// direction refreshes the DI pair and DX from the smoothed sums.
func (a *ADX) direction() {
	a.plusDI, a.minusDI, a.lastDX = 0, 0, 0
	if a.smTR <= 0 {
		return
	}
	a.plusDI = 100 * a.smPlusDM / a.smTR
	a.minusDI = 100 * a.smMinusDM / a.smTR
	if den := a.plusDI + a.minusDI; den > 0 {
		a.lastDX = 100 * math.Abs(a.plusDI-a.minusDI) / den
	}
}
