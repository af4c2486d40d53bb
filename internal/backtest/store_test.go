package backtest

import (
	"context"
	"testing"

	"scalper/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInsertAndIntegrity(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	tf, err := market.ParseTimeframe("5m")
	require.NoError(t, err)
	candles := flatCandles(baseTime, 10, 100)
	// 留出 [3,4] 与 [8] 两段缺口
	kept := append(append([]market.Candle{}, candles[:3]...), candles[5:8]...)
	kept = append(kept, candles[9])
	n, err := store.InsertCandles(ctx, "btcusdt", "5m", kept)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	report, err := store.CheckIntegrity(ctx, "BTCUSDT", tf, baseTime, baseTime+9*step5m)
	require.NoError(t, err)
	assert.Equal(t, int64(10), report.Expected)
	assert.Equal(t, int64(7), report.Present)
	assert.False(t, report.Complete())
	assert.Equal(t, []Gap{
		{From: baseTime + 3*step5m, To: baseTime + 4*step5m},
		{From: baseTime + 8*step5m, To: baseTime + 8*step5m},
	}, report.Gaps)

	_, err = store.InsertCandles(ctx, "BTCUSDT", "5m", candles)
	require.NoError(t, err)
	report, err = store.CheckIntegrity(ctx, "BTCUSDT", tf, baseTime, baseTime+9*step5m)
	require.NoError(t, err)
	assert.True(t, report.Complete())

	got, err := store.RangeCandles(ctx, "BTCUSDT", "5m", baseTime+2*step5m, baseTime+4*step5m)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, candles[2], got[0])

	manifest, err := store.Manifest(ctx, "BTCUSDT", "5m")
	require.NoError(t, err)
	assert.Equal(t, int64(10), manifest.Rows)
	assert.Equal(t, baseTime, manifest.MinTime)
	assert.Equal(t, baseTime+9*step5m, manifest.MaxTime)
}

func TestStoreQueryCandlesOrdering(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	_, err = store.InsertCandles(ctx, "ETHUSDT", "5m", flatCandles(baseTime, 6, 50))
	require.NoError(t, err)

	latest, err := store.QueryCandles(ctx, "ETHUSDT", "5m", 0, 0, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, baseTime+4*step5m, latest[0].OpenTime)
	assert.Equal(t, baseTime+5*step5m, latest[1].OpenTime)

	_, err = store.RangeCandles(ctx, "ETHUSDT", "5m", 0, baseTime)
	assert.Error(t, err)
}

func TestGridGaps(t *testing.T) {
	cases := []struct {
		name string
		have []int64
		want []Gap
	}{
		{"complete", []int64{0, 10, 20, 30}, nil},
		{"empty", nil, []Gap{{From: 0, To: 30}}},
		{"head and tail", []int64{10, 20}, []Gap{{From: 0, To: 0}, {From: 30, To: 30}}},
		{"off grid ignored", []int64{0, 5, 20, 30}, []Gap{{From: 10, To: 10}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, gridGaps(0, 30, 10, tc.have))
		})
	}
}
