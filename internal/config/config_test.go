package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", "strategy:\n  name: zone_breakout\n")
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Market.Symbol)
	assert.Equal(t, "5m", cfg.Market.TradingTimeframe)
	assert.Equal(t, 1.0, cfg.Strategy.RewardRatio)
	assert.True(t, cfg.Strategy.ReturnToEntry)
	assert.False(t, cfg.Session.Enabled)
	assert.Equal(t, 5, cfg.Risk.SizePrecision)
	assert.Equal(t, 4, cfg.Strategy.Quality.MinStars)
	assert.True(t, cfg.Strategy.Quality.RequireTrendMatch)
	assert.Equal(t, map[int]float64{5: 1.0, 4: 0.75}, cfg.Strategy.Quality.StarMultipliers())
	assert.True(t, cfg.Live.PaperTrading)
	assert.Equal(t, []string{"5m", "15m", "1h"}, cfg.Market.Timeframes())
}

func TestLoadRangeFVGDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", "market:\n  symbol: eth/usdt\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "range_fvg", cfg.Strategy.Name)
	assert.Equal(t, "ETHUSDT", cfg.Market.Symbol)
	assert.Equal(t, 2.0, cfg.Strategy.RewardRatio)
	assert.False(t, cfg.Strategy.ReturnToEntry)
	assert.True(t, cfg.Session.Enabled)
	assert.Equal(t, "09:45", cfg.Session.RangeEndTime)
}

func TestDailyLimitDefaultsFollowStrategy(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		maxTrades int
		maxLoss   float64
	}{
		{name: "zone breakout unlimited", body: "strategy:\n  name: zone_breakout\n", maxTrades: 0, maxLoss: 0},
		{name: "zone breakout micro unlimited", body: "strategy:\n  name: zone_breakout\nrisk:\n  preset: micro\n", maxTrades: 0, maxLoss: 0},
		{name: "zone breakout explicit", body: "strategy:\n  name: zone_breakout\nrisk:\n  max_daily_trades: 4\n  max_daily_loss_usd: 80\n", maxTrades: 4, maxLoss: 80},
		{name: "range fvg", body: "strategy:\n  name: range_fvg\n", maxTrades: 3, maxLoss: 500},
		{name: "range fvg micro", body: "risk:\n  preset: micro\n", maxTrades: 1, maxLoss: 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.maxTrades, cfg.Risk.MaxDailyTrades)
			assert.Equal(t, tc.maxLoss, cfg.Risk.MaxDailyLossUSD)
		})
	}
}

func TestExplicitZeroValuesSurvive(t *testing.T) {
	body := `strategy:
  name: zone_breakout
  return_to_entry: false
risk:
  size_precision: 0
session:
  enabled: true
`
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
	require.NoError(t, err)
	assert.False(t, cfg.Strategy.ReturnToEntry)
	assert.Equal(t, 0, cfg.Risk.SizePrecision)
	assert.True(t, cfg.Session.Enabled)
}

func TestMicroPreset(t *testing.T) {
	body := `risk:
  preset: micro
  initial_balance: 100
  max_daily_trades: 2
`
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
	require.NoError(t, err)
	assert.Equal(t, 0.002, cfg.Risk.FeeRate)
	assert.Equal(t, 10.0, cfg.Risk.MinOrderValue)
	assert.Equal(t, 0.01, cfg.Risk.RiskPerTrade)
	assert.Equal(t, 5, cfg.Risk.SizePrecision)
	assert.Equal(t, 2, cfg.Risk.MaxDailyTrades)
	assert.Equal(t, 100.0, cfg.Risk.InitialBalance)
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "market:\n  symbol: SOLUSDT\nrisk:\n  initial_balance: 500\n")
	p := writeFile(t, dir, "config.yaml", "include:\n  - base.yaml\nrisk:\n  initial_balance: 750\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", cfg.Market.Symbol)
	assert.Equal(t, 750.0, cfg.Risk.InitialBalance)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: b.yaml\n")
	writeFile(t, dir, "b.yaml", "include:\n  - a.yaml\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestTelegramSecretsFromEnv(t *testing.T) {
	t.Setenv(EnvTelegramToken, "env-token")
	t.Setenv(EnvTelegramChat, "42")
	body := "notify:\n  telegram:\n    enabled: true\n"
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Notify.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Notify.Telegram.ChatID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown strategy":    "strategy:\n  name: grid\n",
		"window order":        "session:\n  range_end_time: \"13:00\"\n  entry_cutoff_time: \"12:00\"\n",
		"bad timeframe":       "market:\n  trading_timeframe: 7m\n",
		"bad timezone":        "session:\n  timezone: Mars/Olympus\n",
		"telegram without id": "notify:\n  telegram:\n    enabled: true\n    bot_token: x\n",
		"bad star key":        "strategy:\n  quality:\n    multipliers:\n      five: 1\n",
		"bad preset":          "risk:\n  preset: whale\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, DefaultPath, ResolvePath(""))
	t.Setenv(EnvConfigPath, "/etc/scalper.yaml")
	assert.Equal(t, "/etc/scalper.yaml", ResolvePath(""))
	assert.Equal(t, "x.yaml", ResolvePath(" x.yaml "))
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Strategy.Quality.Enabled)
	assert.Equal(t, 1, cfg.Risk.MaxDailyTrades)
}

const legacyDoc = `{
  "exchange": {"name": "binance", "api_key": "k", "api_secret": "s"},
  "bot_settings": {"symbol": "BTC/USDT", "paper_trading": false, "initial_balance": 2500},
  "strategy_parameters": {"risk_per_trade": 0.01, "reward_ratio": 3, "trading_timeframe": "5m", "range_timeframe": "15m"},
  "risk_management": {"max_daily_trades": 2, "max_daily_loss_usd": 100, "max_position_size_usd": 50},
  "time_settings": {"timezone": "America/New_York", "range_start_time": "09:30", "range_end_time": "09:45", "entry_cutoff_time": "11:30", "market_open": "09:30", "market_close": "16:00"},
  "logging": {"log_file": "logs/trades.json"}
}`

func TestParseLegacyJSON(t *testing.T) {
	cfg, err := ParseLegacyJSON([]byte(legacyDoc))
	require.NoError(t, err)
	assert.Equal(t, "range_fvg", cfg.Strategy.Name)
	assert.Equal(t, "BTCUSDT", cfg.Market.Symbol)
	assert.Equal(t, 3.0, cfg.Strategy.RewardRatio)
	assert.Equal(t, 2500.0, cfg.Risk.InitialBalance)
	assert.Equal(t, 2, cfg.Risk.MaxDailyTrades)
	assert.Equal(t, 50.0, cfg.Risk.MaxPositionSizeUSD)
	assert.Equal(t, "11:30", cfg.Session.EntryCutoffTime)
	assert.True(t, cfg.Session.Enabled)
	assert.True(t, cfg.Live.PaperTrading)
	assert.Equal(t, "logs/trades.json", cfg.Live.TradeLog)
}

func TestParseLegacyJSONRejects(t *testing.T) {
	_, err := ParseLegacyJSON([]byte(`{"bot_settings": {"symbol": "BTC/USDT", "initial_balance": 1}}`))
	assert.Error(t, err)
	_, err = ParseLegacyJSON([]byte(`{not json`))
	assert.Error(t, err)
}

func TestShippedLegacyExample(t *testing.T) {
	cfg, err := LoadLegacyJSON(filepath.Join("..", "..", "configs", "config_live.example.json"))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, cfg.Risk.MaxPositionSizeUSD)
}

func TestDumpMasksSecrets(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", "notify:\n  telegram:\n    enabled: true\n    bot_token: secret-token\n    chat_id: \"42\"\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	out, err := Dump(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "symbol: BTCUSDT")
	assert.NotContains(t, string(out), "secret-token")
	assert.Equal(t, "secret-token", cfg.Notify.Telegram.BotToken)

	raw, err := DumpRaw(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "secret-token")
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", "risk:\n  max_daily_trades: 1\n")
	w := &Watcher{path: p}
	require.NoError(t, w.reload())
	assert.Equal(t, int64(1), w.Snapshot().Version)

	got := make(chan Snapshot, 1)
	w.Subscribe(func(s Snapshot) { got <- s })
	w.Subscribe(func(Snapshot) { panic("listener failure is contained") })

	writeFile(t, dir, "config.yaml", "risk:\n  max_daily_trades: 4\n")
	require.NoError(t, w.reload())
	w.notify()

	snap := <-got
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, 4, snap.Config.Risk.MaxDailyTrades)
}
