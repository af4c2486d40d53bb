package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scalper/internal/config"
	"scalper/internal/engine"
	"scalper/internal/market"
	"scalper/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	texts []string
}

func (c *captureNotifier) SendText(text string) error {
	c.texts = append(c.texts, text)
	return nil
}

func loadTestConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	cfg, err := config.Load(p)
	require.NoError(t, err)
	return cfg
}

// breakoutCandles 构造 30 根十字星盘整，随后一根放量突破并在下一根触及止盈。
func breakoutCandles() []market.Candle {
	var out []market.Candle
	add := func(open, high, low, close float64) {
		ot := baseTime + int64(len(out))*step5m
		out = append(out, market.Candle{OpenTime: ot, CloseTime: ot + step5m - 1, Open: open, High: high, Low: low, Close: close, Volume: 10})
	}
	for i := 0; i < 30; i++ {
		high, low := 100.5, 99.5
		if i%4 == 1 {
			high = 101
		}
		if i%4 == 3 {
			low = 99
		}
		add(100, high, low, 100)
	}
	add(100.6, 102.1, 100.5, 102)
	add(103, 104, 102.5, 103)
	add(103, 103.5, 102.5, 103)
	add(103, 103.5, 102.5, 103)
	return out
}

func newTestSimulator(t *testing.T, cfg *config.Config, candles []market.Candle, now time.Time) (*Simulator, *captureNotifier) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	if len(candles) > 0 {
		_, err = store.InsertCandles(context.Background(), cfg.Market.Symbol, cfg.Market.TradingTimeframe, candles)
		require.NoError(t, err)
	}
	notifier := &captureNotifier{}
	sim, err := NewSimulator(SimulatorConfig{
		Config:      cfg,
		CandleStore: store,
		ResultStore: newTestResultStore(t),
		Notifier:    notifier,
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)
	return sim, notifier
}

func TestSimulatorZoneBreakoutTakeProfit(t *testing.T) {
	cfg := loadTestConfig(t, "strategy:\n  name: zone_breakout\n")
	now := time.UnixMilli(baseTime + 40*step5m)
	sim, notifier := newTestSimulator(t, cfg, breakoutCandles(), now)

	res, err := sim.Run(context.Background(), RunRequest{StartTS: baseTime})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, engine.ReasonTakeProfit, trade.Reason)
	assert.Equal(t, strategy.Long, trade.Direction)
	assert.InDelta(t, 102, trade.Entry, 1e-9)
	assert.InDelta(t, 100.3995, trade.StopLoss, 1e-9)
	assert.InDelta(t, 103.6005, trade.Exit, 1e-9)
	assert.InDelta(t, 124.96095, trade.Size, 1e-9)
	assert.InDelta(t, 200, trade.PnL, 0.01)
	assert.Equal(t, baseTime+30*step5m, trade.EntryTime)
	assert.Equal(t, baseTime+31*step5m, trade.ExitTime)

	st := res.Run.Stats
	assert.Equal(t, 1, st.Trades)
	assert.Equal(t, 1, st.Wins)
	assert.Equal(t, 34, st.Bars)
	assert.InDelta(t, 10200, st.FinalBalance, 0.01)
	assert.Len(t, res.Equity, 2)
	assert.Nil(t, res.Final.Position)

	stored, err := sim.Results().GetRun(context.Background(), res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, stored.Status)
	assert.Equal(t, 1, stored.Stats.Trades)

	rows, err := sim.Results().ListTrades(context.Background(), res.Run.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, trade.ID, rows[0].ID)

	fills, err := sim.Results().ListEvents(context.Background(), res.Run.ID, EventFilled, 0)
	require.NoError(t, err)
	assert.Len(t, fills, 1)

	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "BTCUSDT")
}

func TestSimulatorForceClosesAtEnd(t *testing.T) {
	cfg := loadTestConfig(t, "strategy:\n  name: zone_breakout\n  return_to_entry: false\n")
	candles := breakoutCandles()[:31]
	now := time.UnixMilli(baseTime + 40*step5m)
	sim, _ := newTestSimulator(t, cfg, candles, now)

	res, err := sim.Run(context.Background(), RunRequest{StartTS: baseTime})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, engine.ReasonBacktestEnd, res.Trades[0].Reason)
	assert.InDelta(t, 102, res.Trades[0].Exit, 1e-9)
	assert.InDelta(t, 0, res.Trades[0].PnL, 1e-9)
}

func TestSimulatorWithoutCandles(t *testing.T) {
	cfg := loadTestConfig(t, "strategy:\n  name: zone_breakout\n")
	sim, _ := newTestSimulator(t, cfg, nil, time.UnixMilli(baseTime+40*step5m))

	_, err := sim.Run(context.Background(), RunRequest{StartTS: baseTime})
	require.Error(t, err)

	runs, err := sim.Results().ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
}

func TestSimulatorPlan(t *testing.T) {
	day := 24 * time.Hour.Milliseconds()
	now := time.UnixMilli(baseTime + 10*day)
	lastClosed := baseTime + 10*day - step5m

	t.Run("days back from last closed", func(t *testing.T) {
		cfg := loadTestConfig(t, "strategy:\n  name: zone_breakout\n")
		sim, _ := newTestSimulator(t, cfg, nil, now)
		rc, err := sim.Plan(RunRequest{Days: 2, Symbol: "eth/usdt"})
		require.NoError(t, err)
		assert.Equal(t, "ETHUSDT", rc.Symbol)
		assert.Equal(t, lastClosed, rc.EndTS)
		assert.Equal(t, lastClosed-2*day, rc.StartTS)
		assert.Empty(t, rc.RangeTimeframe)
		assert.Empty(t, rc.ConfirmTimeframe)
		assert.InDelta(t, 10000, rc.InitialBalance, 1e-9)
	})

	t.Run("end capped at last closed", func(t *testing.T) {
		cfg := loadTestConfig(t, "strategy:\n  name: zone_breakout\n")
		sim, _ := newTestSimulator(t, cfg, nil, now)
		rc, err := sim.Plan(RunRequest{StartTS: baseTime, EndTS: baseTime + 20*day, InitialBalance: 500})
		require.NoError(t, err)
		assert.Equal(t, lastClosed, rc.EndTS)
		assert.InDelta(t, 500, rc.InitialBalance, 1e-9)
	})

	t.Run("configured dates", func(t *testing.T) {
		body := `strategy:
  name: range_fvg
  quality:
    enabled: true
session:
  timezone: UTC
backtest:
  start: "2024-01-03"
  end: "2024-01-04"
`
		cfg := loadTestConfig(t, body)
		sim, _ := newTestSimulator(t, cfg, nil, now)
		rc, err := sim.Plan(RunRequest{})
		require.NoError(t, err)
		assert.Equal(t, baseTime+day, rc.StartTS)
		assert.Equal(t, baseTime+3*day-step5m, rc.EndTS)
		assert.Equal(t, "15m", rc.RangeTimeframe)
		assert.Equal(t, "1h", rc.ConfirmTimeframe)
	})

	t.Run("empty window", func(t *testing.T) {
		cfg := loadTestConfig(t, "strategy:\n  name: zone_breakout\n")
		sim, _ := newTestSimulator(t, cfg, nil, now)
		_, err := sim.Plan(RunRequest{StartTS: baseTime + 20*day})
		assert.Error(t, err)
	})
}
