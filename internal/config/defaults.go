package config

import (
	"strings"

	"scalper/internal/pkg/symbol"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":9991"
	defaultAppLogPath      = "data/logs/scalper.log"
	defaultAppDataDir      = "data"
	defaultExchange        = "binance"
	defaultSymbol          = "BTCUSDT"
	defaultTradingTF       = "5m"
	defaultRangeTF         = "15m"
	defaultConfirmTF       = "1h"
	defaultRESTBaseURL     = "https://api.binance.com"
	defaultPollSeconds     = 60
	defaultHistoryLimit    = 150
	defaultStrategyName    = "range_fvg"
	defaultMinBodyRatio    = 0.6
	defaultLookback        = 20
	defaultZoneReward      = 1
	defaultFVGReward       = 2
	defaultMinStars        = 4
	defaultVolumeMult      = 2.0
	defaultVolatilityMult  = 1.3
	defaultEMAPeriod       = 50
	defaultATRPeriod       = 14
	defaultInitialBalance  = 10000
	defaultRiskPerTrade    = 0.02
	defaultMaxDailyTrades  = 3
	defaultMaxDailyLossUSD = 500
	defaultSizePrecision   = 5
	defaultTimezone        = "America/New_York"
	defaultRangeStart      = "09:30"
	defaultRangeEnd        = "09:45"
	defaultEntryCutoff     = "12:00"
	defaultMarketOpen      = "09:30"
	defaultMarketClose     = "16:00"
	defaultBacktestDays    = 7
	defaultResultsDB       = "data/backtest/runs.db"
	defaultCandlesDir      = "data/backtest/candles"
	defaultRateLimitPerMin = 1200
	defaultMaxConcurrent   = 2
	defaultReportDir       = "data/backtest/reports"
	defaultStateDB         = "data/live/state.db"
	defaultTradeLog        = "data/live/trades.json"
	presetMicro            = "micro"
	microFeeRate           = 0.002
	microSizePrecision     = 5
	microMinOrderValue     = 10
	microMaxDailyTrades    = 1
	microRiskPerTrade      = 0.01
	defaultStarMultiplier5 = 1.0
	defaultStarMultiplier4 = 0.75
)

// applyDefaults 为所有子配置应用默认值，仅作用于配置文件未显式设置的字段。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Risk.applyDefaults(keys, c.Strategy.Name)
	c.Session.applyDefaults(keys, c.Strategy.Name)
	c.Backtest.applyDefaults(keys)
	c.Live.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.exchange", &m.Exchange, defaultExchange),
		stringFieldDefault("market.symbol", &m.Symbol, defaultSymbol),
		stringFieldDefault("market.trading_timeframe", &m.TradingTimeframe, defaultTradingTF),
		stringFieldDefault("market.range_timeframe", &m.RangeTimeframe, defaultRangeTF),
		stringFieldDefault("market.confirm_timeframe", &m.ConfirmTimeframe, defaultConfirmTF),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultRESTBaseURL),
		intFieldDefault("market.poll_interval_seconds", &m.PollIntervalSeconds, defaultPollSeconds),
		intFieldDefault("market.history_limit", &m.HistoryLimit, defaultHistoryLimit),
	)
	m.Symbol = symbol.Normalize(m.Symbol)
	m.Exchange = strings.ToLower(strings.TrimSpace(m.Exchange))
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("strategy.name", &s.Name, defaultStrategyName))
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	zone := s.Name == "zone_breakout"
	reward := float64(defaultFVGReward)
	if zone {
		reward = defaultZoneReward
	}
	applyFieldDefaults(keys,
		floatFieldDefault("strategy.reward_ratio", &s.RewardRatio, reward),
		floatFieldDefault("strategy.min_body_ratio", &s.MinBodyRatio, defaultMinBodyRatio),
		intFieldDefault("strategy.lookback", &s.Lookback, defaultLookback),
		// 只有 zone_breakout 默认启用回到入场价离场。
		boolFieldDefault("strategy.return_to_entry", &s.ReturnToEntry, zone),
	)
	q := &s.Quality
	applyFieldDefaults(keys,
		intFieldDefault("strategy.quality.min_stars", &q.MinStars, defaultMinStars),
		boolFieldDefault("strategy.quality.require_trend_match", &q.RequireTrendMatch, true),
		floatFieldDefault("strategy.quality.volume_multiplier", &q.VolumeMultiplier, defaultVolumeMult),
		floatFieldDefault("strategy.quality.volatility_multiplier", &q.VolatilityMultiplier, defaultVolatilityMult),
		intFieldDefault("strategy.quality.ema_period", &q.EMAPeriod, defaultEMAPeriod),
		intFieldDefault("strategy.quality.atr_period", &q.ATRPeriod, defaultATRPeriod),
	)
	if len(q.Multipliers) == 0 {
		q.Multipliers = map[string]float64{"5": defaultStarMultiplier5, "4": defaultStarMultiplier4}
	}
}

func (r *RiskConfig) applyDefaults(keys keySet, strategyName string) {
	if r == nil {
		return
	}
	// zone_breakout 默认不设日内次数/亏损上限（0 即关闭）。
	maxTrades, maxLoss := defaultMaxDailyTrades, float64(defaultMaxDailyLossUSD)
	microTrades := microMaxDailyTrades
	if strategyName == "zone_breakout" {
		maxTrades, maxLoss, microTrades = 0, 0, 0
	}
	r.Preset = strings.ToLower(strings.TrimSpace(r.Preset))
	if r.Preset == presetMicro {
		applyFieldDefaults(keys,
			setFieldDefault("risk.fee_rate", func() { r.FeeRate = microFeeRate }),
			setFieldDefault("risk.size_precision", func() { r.SizePrecision = microSizePrecision }),
			setFieldDefault("risk.min_order_value", func() { r.MinOrderValue = microMinOrderValue }),
			setFieldDefault("risk.max_daily_trades", func() { r.MaxDailyTrades = microTrades }),
			setFieldDefault("risk.risk_per_trade", func() { r.RiskPerTrade = microRiskPerTrade }),
		)
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.initial_balance", &r.InitialBalance, defaultInitialBalance),
		floatFieldDefault("risk.risk_per_trade", &r.RiskPerTrade, defaultRiskPerTrade),
		intFieldDefault("risk.max_daily_trades", &r.MaxDailyTrades, maxTrades),
		floatFieldDefault("risk.max_daily_loss_usd", &r.MaxDailyLossUSD, maxLoss),
		setFieldDefault("risk.size_precision", func() { r.SizePrecision = defaultSizePrecision }),
	)
}

func (s *SessionConfig) applyDefaults(keys keySet, strategyName string) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("session.enabled", &s.Enabled, strategyName == "range_fvg"),
		stringFieldDefault("session.timezone", &s.Timezone, defaultTimezone),
		stringFieldDefault("session.range_start_time", &s.RangeStartTime, defaultRangeStart),
		stringFieldDefault("session.range_end_time", &s.RangeEndTime, defaultRangeEnd),
		stringFieldDefault("session.entry_cutoff_time", &s.EntryCutoffTime, defaultEntryCutoff),
		stringFieldDefault("session.market_open", &s.MarketOpen, defaultMarketOpen),
		stringFieldDefault("session.market_close", &s.MarketClose, defaultMarketClose),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("backtest.days", &b.Days, defaultBacktestDays),
		stringFieldDefault("backtest.results_db", &b.ResultsDB, defaultResultsDB),
		stringFieldDefault("backtest.candles_dir", &b.CandlesDir, defaultCandlesDir),
		intFieldDefault("backtest.rate_limit_per_min", &b.RateLimitPerMin, defaultRateLimitPerMin),
		intFieldDefault("backtest.max_concurrent", &b.MaxConcurrent, defaultMaxConcurrent),
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultReportDir),
	)
}

func (l *LiveConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("live.paper_trading", &l.PaperTrading, true),
		stringFieldDefault("live.state_db", &l.StateDB, defaultStateDB),
		stringFieldDefault("live.trade_log", &l.TradeLog, defaultTradeLog),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

// setFieldDefault 仅在 key 未显式设置时执行 apply，零值同样视为有效配置。
func setFieldDefault(key string, apply func()) fieldDefault {
	return fieldDefault{key: key, apply: apply}
}
