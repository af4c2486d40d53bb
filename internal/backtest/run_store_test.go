package backtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResultStore(t *testing.T) *ResultStore {
	t.Helper()
	store, err := NewResultStore(filepath.Join(t.TempDir(), "results", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResultStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestResultStore(t)

	run := Run{
		ID:       "run-1",
		Symbol:   "BTCUSDT",
		Strategy: "zone_breakout",
		Status:   RunStatusRunning,
		StartTS:  baseTime,
		EndTS:    baseTime + 100*step5m,
		Config:   RunConfig{Symbol: "BTCUSDT", Strategy: "zone_breakout", InitialBalance: 10000, TradingTimeframe: "5m"},
	}
	require.NoError(t, store.InsertRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Equal(t, "5m", got.Config.TradingTimeframe)
	assert.True(t, got.CompletedAt.IsZero())

	stats := RunStats{InitialBalance: 10000, FinalBalance: 10150, TotalPnL: 150, Trades: 2, Wins: 1, Losses: 1, WinRate: 50, Quality: map[int]int{4: 2}}
	require.NoError(t, store.UpdateRunSummary(ctx, "run-1", RunStatusDone, stats, "ok"))

	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.Equal(t, "ok", got.Message)
	assert.InDelta(t, 10150, got.Stats.FinalBalance, 1e-9)
	assert.Equal(t, 2, got.Stats.Quality[4])
	assert.False(t, got.CompletedAt.IsZero())

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	_, err = store.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestResultStoreTradesSnapshotsEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestResultStore(t)
	require.NoError(t, store.InsertRun(ctx, Run{ID: "r", Symbol: "ETHUSDT", Strategy: "range_fvg", Status: RunStatusRunning}))

	trades := []TradeRecord{
		{ID: "t2", Kind: "FVG", Direction: "BUY", EntryTime: 300, ExitTime: 400, PnL: -20, Reason: "Stop Loss"},
		{ID: "t1", Kind: "FVG", Direction: "SELL", EntryTime: 100, ExitTime: 200, PnL: 60, Reason: "Take Profit"},
	}
	require.NoError(t, store.InsertTrades(ctx, "r", trades))
	listed, err := store.ListTrades(ctx, "r", 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "t2", listed[0].ID, "insertion order is preserved")
	assert.Equal(t, "r", listed[1].RunID)

	require.NoError(t, store.InsertSnapshots(ctx, "r", []Snapshot{
		{TS: 200, Balance: 10060},
		{TS: 100, Balance: 10000},
	}))
	snaps, err := store.ListSnapshots(ctx, "r", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(100), snaps[0].TS)

	require.NoError(t, store.InsertEvents(ctx, "r", []Event{
		{TS: 1, Kind: EventRangeMarked, Reason: "2024-01-02"},
		{TS: 2, Kind: EventSkipped, Reason: "Trend mismatch (BUY vs DOWN)", Payload: `{"direction":"BUY"}`},
		{TS: 3, Kind: EventSkipped, Reason: "Low quality (2 stars, need 3+)"},
	}))
	all, err := store.ListEvents(ctx, "r", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	skips, err := store.ListEvents(ctx, "r", EventSkipped, 0)
	require.NoError(t, err)
	require.Len(t, skips, 2)
	assert.Equal(t, `{"direction":"BUY"}`, skips[0].Payload)
	assert.Empty(t, skips[1].Payload)
}
