package store

import (
	"testing"

	"scalper/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candle(open int64, close float64) market.Candle {
	return market.Candle{OpenTime: open, CloseTime: open + 59_999, Open: close, High: close, Low: close, Close: close}
}

func TestCandleBufferMerge(t *testing.T) {
	buf := NewCandleBuffer(3)

	added, err := buf.Merge("BTCUSDT", "5m", []market.Candle{candle(1, 10), candle(2, 11)})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// 末尾覆盖 + 旧数据忽略 + 追加
	added, err = buf.Merge("BTCUSDT", "5m", []market.Candle{candle(1, 99), candle(2, 12), candle(3, 13), candle(4, 14)})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	got := buf.Get("BTCUSDT", "5m")
	require.Len(t, got, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{got[0].OpenTime, got[1].OpenTime, got[2].OpenTime})
	assert.Equal(t, 12.0, got[0].Close)

	last, ok := buf.Last("BTCUSDT", "5m")
	require.True(t, ok)
	assert.Equal(t, int64(4), last.OpenTime)

	got[0].Close = -1
	assert.Equal(t, 12.0, buf.Get("BTCUSDT", "5m")[0].Close)
}

func TestCandleBufferEdgeCases(t *testing.T) {
	buf := NewCandleBuffer(0)
	_, err := buf.Merge("", "5m", []market.Candle{candle(1, 1)})
	assert.Error(t, err)

	added, err := buf.Merge("ETHUSDT", "1h", nil)
	require.NoError(t, err)
	assert.Zero(t, added)

	_, ok := buf.Last("ETHUSDT", "1h")
	assert.False(t, ok)
	assert.Empty(t, buf.Get("ETHUSDT", "1h"))
}
