package backtesthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scalper/internal/backtest"
	"scalper/internal/market"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{}

func (staticSource) Name() string { return "static" }

func (staticSource) Fetch(context.Context, backtest.FetchRequest) ([]market.Candle, error) {
	return nil, nil
}

var base = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()

func newTestServer(t *testing.T) (*Server, *backtest.Store, *backtest.ResultStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := backtest.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	results, err := backtest.NewResultStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { results.Close() })
	svc, err := backtest.NewService(backtest.ServiceConfig{
		Store:   store,
		Sources: map[string]backtest.CandleSource{"static": staticSource{}},
	})
	require.NoError(t, err)
	srv, err := NewServer(Config{Svc: svc, Results: results})
	require.NoError(t, err)
	return srv, store, results
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var out map[string]json.RawMessage
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestNewServerRequiresService(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHealthAndCandles(t *testing.T) {
	srv, store, _ := newTestServer(t)
	rec, _ := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	candles := []market.Candle{
		{OpenTime: base, CloseTime: base + 299_999, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{OpenTime: base + 300_000, CloseTime: base + 599_999, Open: 1.5, High: 2, Low: 1, Close: 1.8},
	}
	_, err := store.InsertCandles(context.Background(), "BTCUSDT", "5m", candles)
	require.NoError(t, err)

	rec, body := do(t, srv, http.MethodGet, "/api/backtest/candles?symbol=btcusdt&timeframe=5m", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []market.Candle
	require.NoError(t, json.Unmarshal(body["candles"], &got))
	assert.Len(t, got, 2)

	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/candles?symbol=BTCUSDT", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/candles?symbol=BTCUSDT&timeframe=5m&limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, srv, http.MethodGet, "/api/backtest/data?symbol=BTCUSDT&timeframe=5m", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var manifest backtest.Manifest
	require.NoError(t, json.Unmarshal(body["manifest"], &manifest))
	assert.Equal(t, int64(2), manifest.Rows)
}

func TestFetchJobs(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, _ := do(t, srv, http.MethodPost, "/api/backtest/fetch", `{"symbol":"BTCUSDT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/fetch/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := do(t, srv, http.MethodGet, "/api/backtest/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(body["jobs"]))
}

func TestRunEndpoints(t *testing.T) {
	srv, _, results := newTestServer(t)
	ctx := context.Background()
	run := backtest.Run{ID: "run-1", Symbol: "BTCUSDT", Strategy: "zone_breakout", Status: backtest.RunStatusDone, StartTS: base, EndTS: base + 3_600_000}
	require.NoError(t, results.InsertRun(ctx, run))
	require.NoError(t, results.InsertTrades(ctx, "run-1", []backtest.TradeRecord{
		{ID: "t1", Direction: "LONG", EntryTime: base, ExitTime: base + 300_000, Entry: 100, Exit: 101, PnL: 10, Reason: "Take Profit"},
	}))

	rec, body := do(t, srv, http.MethodGet, "/api/backtest/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []backtest.Run
	require.NoError(t, json.Unmarshal(body["runs"], &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/runs/run-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, srv, http.MethodGet, "/api/backtest/runs/run-1/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []backtest.TradeRecord
	require.NoError(t, json.Unmarshal(body["trades"], &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)

	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/runs/run-1/events?kind=filled", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, srv, http.MethodGet, "/api/backtest/runs/run-1/snapshots", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/api/backtest/runs", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"run missing", backtest.ErrRunNotFound, http.StatusNotFound},
		{"job missing", backtest.ErrJobNotFound, http.StatusNotFound},
		{"store failure", internal(assert.AnError), http.StatusInternalServerError},
		{"no simulator", errNoSimulator, http.StatusServiceUnavailable},
		{"bad input", errMissingSeries, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusOf(tc.err))
		})
	}
}

func TestRunListRejectsBadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec, body := do(t, srv, http.MethodGet, "/api/backtest/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(body["error"]), "limit")
}
