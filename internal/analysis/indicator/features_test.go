package indicator

import (
	"math"
	"testing"

	"scalper/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(open, high, low, close float64) market.Candle {
	return market.Candle{Open: open, High: high, Low: low, Close: close, Volume: 1}
}

func TestFullBodied(t *testing.T) {
	t.Run("bullish", func(t *testing.T) {
		got := FullBodied(bar(100, 101, 99.9, 100.9), DefaultMinBodyRatio)
		assert.True(t, got.Bullish)
		assert.False(t, got.Bearish)
		assert.InDelta(t, 0.9/1.1, got.BodyRatio, 1e-9)
	})
	t.Run("bearish", func(t *testing.T) {
		got := FullBodied(bar(101, 101.1, 99.9, 100), DefaultMinBodyRatio)
		assert.True(t, got.Bearish)
		assert.False(t, got.Bullish)
	})
	t.Run("small body", func(t *testing.T) {
		got := FullBodied(bar(100, 102, 98, 100.5), DefaultMinBodyRatio)
		assert.False(t, got.Bullish)
		assert.False(t, got.Bearish)
	})
	t.Run("zero range", func(t *testing.T) {
		got := FullBodied(bar(100, 100, 100, 100), DefaultMinBodyRatio)
		assert.Equal(t, BodyClass{}, got)
	})
}

func TestSwingLevels(t *testing.T) {
	t.Run("second most recent swing", func(t *testing.T) {
		lows := []float64{10, 8, 9, 7, 9, 6, 9, 10}
		window := make([]market.Candle, len(lows))
		for i, l := range lows {
			window[i] = market.Candle{Low: l, High: l + 1}
		}
		got, ok := SwingLevels(window)
		require.True(t, ok)
		// 摆动低点 8, 7, 6 -> 倒数第二个是 7
		assert.Equal(t, 7.0, got.PreviousLow)
	})
	t.Run("fallback to window extremes", func(t *testing.T) {
		window := []market.Candle{
			{Low: 1, High: 2}, {Low: 2, High: 3}, {Low: 3, High: 4}, {Low: 4, High: 5},
		}
		got, ok := SwingLevels(window)
		require.True(t, ok)
		assert.Equal(t, 1.0, got.PreviousLow)
		assert.Equal(t, 5.0, got.PreviousHigh)
	})
	t.Run("short window", func(t *testing.T) {
		_, ok := SwingLevels([]market.Candle{{}, {}})
		assert.False(t, ok)
	})
}

func TestEMASeededWithFirstValue(t *testing.T) {
	got := EMA([]float64{10, 20}, 3)
	require.Len(t, got, 2)
	assert.Equal(t, 10.0, got[0])
	assert.InDelta(t, 15.0, got[1], 1e-12)
}

func TestATRUsesSimpleMean(t *testing.T) {
	candles := []market.Candle{
		bar(10, 11, 9, 10),  // tr 2
		bar(10, 14, 10, 13), // tr 4
		bar(13, 13, 7, 8),   // tr 6
	}
	atr := ATR(candles, 2)
	assert.True(t, math.IsNaN(atr[0]))
	assert.InDelta(t, 3.0, atr[1], 1e-12)
	assert.InDelta(t, 5.0, atr[2], 1e-12)
}

func TestTrendOf(t *testing.T) {
	flat := make([]market.Candle, 50)
	for i := range flat {
		flat[i] = bar(100, 100, 100, 100)
	}
	assert.Equal(t, TrendNeutral, TrendOf(flat, 50))
	assert.Equal(t, TrendNeutral, TrendOf(flat[:10], 50))

	up := append(append([]market.Candle{}, flat...), bar(100, 110, 100, 110))
	assert.Equal(t, TrendBullish, TrendOf(up, 50))

	down := append(append([]market.Candle{}, flat...), bar(100, 100, 90, 90))
	assert.Equal(t, TrendBearish, TrendOf(down, 50))
}

func TestVolatilityOK(t *testing.T) {
	window := make([]market.Candle, 40)
	for i := range window {
		window[i] = bar(100, 101, 99, 100)
	}
	assert.False(t, VolatilityOK(window, 14, 1.3))
	window = append(window, bar(100, 120, 80, 100))
	assert.True(t, VolatilityOK(window, 14, 1.3))
	assert.False(t, VolatilityOK(window[:20], 14, 1.3))
}

func TestVolumeOK(t *testing.T) {
	window := make([]market.Candle, 20)
	for i := range window {
		window[i] = market.Candle{Volume: 10}
	}
	assert.True(t, VolumeOK(market.Candle{Volume: 21}, window, 2.0))
	assert.False(t, VolumeOK(market.Candle{Volume: 20}, window, 2.0))
	assert.False(t, VolumeOK(market.Candle{Volume: 100}, window[:19], 2.0))
}
