package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedADX(a *ADX, n int, start, step, halfRange float64) {
	p := start
	for i := 0; i < n; i++ {
		o, c := p, p+step
		a.Update(max(o, c)+halfRange, min(o, c)-halfRange, c)
		p = c
	}
}

func TestADXWarmup(t *testing.T) {
	a := NewADX(14)
	assert.Equal(t, "ADX(14)", a.Name())
	assert.Equal(t, 28, a.Warmup())
	assert.False(t, a.Ready())
	assert.Equal(t, 0.0, a.Value())

	// one seed bar, 14 periods to smooth, 13 more DX values to seed ADX
	feedADX(a, 27, 1.0, 0.0001, 0.00005)
	assert.False(t, a.Ready())
	feedADX(a, 1, 1.0027, 0.0001, 0.00005)
	assert.True(t, a.Ready())

	a.Reset()
	assert.False(t, a.Ready())
}

func TestADXFlatMarket(t *testing.T) {
	a := NewADX(14)
	for i := 0; i < 42; i++ {
		a.Update(1.2345, 1.2345, 1.2345)
	}
	require.True(t, a.Ready())
	assert.InDelta(t, 0, a.PlusDI(), 1e-12)
	assert.InDelta(t, 0, a.MinusDI(), 1e-12)
	assert.InDelta(t, 0, a.DX(), 1e-12)
	assert.InDelta(t, 0, a.Value(), 1e-12)
}

func TestADXTrend(t *testing.T) {
	up := NewADX(14)
	feedADX(up, 42, 1.0, 0.0001, 0.00005)
	require.True(t, up.Ready())
	assert.Greater(t, up.PlusDI(), up.MinusDI())
	assert.Greater(t, up.Value(), 50.0)
	assert.LessOrEqual(t, up.Value(), 100.0)

	down := NewADX(14)
	feedADX(down, 42, 1.0, -0.0001, 0.00005)
	require.True(t, down.Ready())
	assert.Greater(t, down.MinusDI(), down.PlusDI())
	assert.Greater(t, down.Value(), 50.0)
}
