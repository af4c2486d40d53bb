package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scalper/internal/backtest"
	"scalper/internal/config"
	"scalper/internal/engine"
	"scalper/internal/gateway/notifier"
	"scalper/internal/market"
	"scalper/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const step5m = int64(5 * 60 * 1000)

type nopCandleSource struct{}

func (nopCandleSource) Name() string { return "nop" }

func (nopCandleSource) Fetch(context.Context, backtest.FetchRequest) ([]market.Candle, error) {
	return nil, nil
}

type staticLiveSource struct{}

func (staticLiveSource) Name() string { return "static" }

func (staticLiveSource) FetchHistory(context.Context, string, string, int) ([]market.Candle, error) {
	return nil, nil
}

func (staticLiveSource) Stats() market.SourceStats { return market.SourceStats{} }

type recordingNotifier struct{ texts []string }

func (r *recordingNotifier) SendText(text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func writeConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
app:
  http_addr: "127.0.0.1:0"
market:
  symbol: BTCUSDT
  trading_timeframe: 5m
  range_timeframe: 5m
  confirm_timeframe: 5m
strategy:
  name: zone_breakout
session:
  timezone: UTC
  market_open: "00:00"
  market_close: "23:59"
backtest:
  candles_dir: %s
  results_db: %s
  report_dir: %s
live:
  state_db: %s
  trade_log: %s
`,
		filepath.Join(dir, "candles"),
		filepath.Join(dir, "runs.db"),
		filepath.Join(dir, "reports"),
		filepath.Join(dir, "state.db"),
		filepath.Join(dir, "trades.json"),
	)
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	cfg, err := config.Load(p)
	require.NoError(t, err)
	return p, cfg
}

func newTestApp(t *testing.T, opts ...AppBuilderOption) (*App, *recordingNotifier) {
	t.Helper()
	path, cfg := writeConfig(t)
	rn := &recordingNotifier{}
	base := []AppBuilderOption{
		WithConfigPath(path),
		WithCandleSources(func(*config.Config) map[string]backtest.CandleSource {
			return map[string]backtest.CandleSource{"binance": nopCandleSource{}}
		}),
		WithLiveSource(func(*config.Config) (market.Source, error) { return staticLiveSource{}, nil }),
		WithNotifier(func(*config.Config) notifier.TextNotifier { return rn }),
	}
	a, err := NewApp(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, rn
}

func TestNewAppRejectsNilConfig(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)
}

func TestBuildWiresBacktestStack(t *testing.T) {
	a, _ := newTestApp(t)
	require.NotNil(t, a.Backtest())
	assert.NotNil(t, a.backtest.sim)
	assert.NotNil(t, a.backtest.svc)
	require.NotNil(t, a.Summary)
	assert.Equal(t, "BTCUSDT", a.Summary.Market.Symbol)
	assert.Nil(t, a.live, "live 依赖按需创建")
}

func TestHTTPServerServesHealthAndRuns(t *testing.T) {
	a, _ := newTestApp(t)
	server, err := a.httpServer(nil)
	require.NoError(t, err)

	for _, path := range []string{"/healthz", "/api/backtest/runs"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestBuildLiveRestoresAndMountsRoutes(t *testing.T) {
	a, _ := newTestApp(t)
	ls, err := a.builder.buildLive(context.Background(), a.notifier)
	require.NoError(t, err)
	a.live = ls
	require.NotNil(t, ls.Runner())
	assert.Equal(t, "BTCUSDT@zone_breakout", ls.key)
	assert.NotNil(t, ls.watcher)

	server, err := a.httpServer(ls)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BTCUSDT")
}

func TestBuildLiveSourceError(t *testing.T) {
	a, _ := newTestApp(t, WithLiveSource(func(*config.Config) (market.Source, error) {
		return nil, fmt.Errorf("boom")
	}))
	_, err := a.builder.buildLive(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestWriteReport(t *testing.T) {
	a, _ := newTestApp(t)
	candles := make(market.Candles, 12)
	for i := range candles {
		p := 100 + float64(i)
		candles[i] = market.Candle{OpenTime: int64(i) * step5m, CloseTime: int64(i+1)*step5m - 1, Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 5}
	}
	res := &backtest.Result{
		Run: backtest.Run{ID: "run1", Symbol: "BTCUSDT", Strategy: "zone_breakout", Config: backtest.RunConfig{TradingTimeframe: "5m"}},
		Trades: []engine.ClosedTrade{
			{ID: "t1", Direction: strategy.Long, EntryTime: 2 * step5m, ExitTime: 4 * step5m, Entry: 102, Exit: 104, PnL: 20, Reason: engine.ReasonTakeProfit},
		},
		Equity:  []backtest.Snapshot{{TS: 0, Balance: 10000}, {TS: 4 * step5m, Balance: 10020}},
		Candles: candles,
	}

	t.Run("writes html", func(t *testing.T) {
		path, err := a.backtest.WriteReport(context.Background(), res)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(path, "BTCUSDT_zone_breakout_run1.html"))
		body, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(body), "Equity")
	})

	t.Run("empty result", func(t *testing.T) {
		_, err := a.backtest.WriteReport(context.Background(), &backtest.Result{})
		assert.Error(t, err)
	})
}

func TestStartupSummaryRender(t *testing.T) {
	_, cfg := writeConfig(t)
	cfg.Strategy.Quality.Enabled = true
	cfg.Strategy.Quality.Multipliers = map[string]float64{"5": 1.5, "4": 1}
	out := newStartupSummary(cfg).Render()
	assert.Contains(t, out, "STARTUP SUMMARY")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "4★=1.00, 5★=1.50")
	assert.Contains(t, out, "state:")

	var nilSummary *StartupSummary
	assert.Empty(t, nilSummary.Render())
}
