package config

import (
	"strconv"
	"strings"
)

// Config 是 scalper 的主配置载体。
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Market   MarketConfig   `mapstructure:"market" yaml:"market"`
	Strategy StrategyConfig `mapstructure:"strategy" yaml:"strategy"`
	Risk     RiskConfig     `mapstructure:"risk" yaml:"risk"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Backtest BacktestConfig `mapstructure:"backtest" yaml:"backtest"`
	Live     LiveConfig     `mapstructure:"live" yaml:"live"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
}

type AppConfig struct {
	Env       string `mapstructure:"env" yaml:"env"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	LogPath   string `mapstructure:"log_path" yaml:"log_path"`
	// JournalPath 记录订单/成交/平仓等状态迁移，空则不落盘。
	JournalPath string `mapstructure:"journal_path" yaml:"journal_path"`
	HTTPAddr    string `mapstructure:"http_addr" yaml:"http_addr"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
}

type MarketConfig struct {
	Exchange            string `mapstructure:"exchange" yaml:"exchange"`
	Symbol              string `mapstructure:"symbol" yaml:"symbol"`
	TradingTimeframe    string `mapstructure:"trading_timeframe" yaml:"trading_timeframe"`
	RangeTimeframe      string `mapstructure:"range_timeframe" yaml:"range_timeframe"`
	ConfirmTimeframe    string `mapstructure:"confirm_timeframe" yaml:"confirm_timeframe"`
	RESTBaseURL         string `mapstructure:"rest_base_url" yaml:"rest_base_url"`
	ProxyURL            string `mapstructure:"proxy_url" yaml:"proxy_url,omitempty"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	HistoryLimit        int    `mapstructure:"history_limit" yaml:"history_limit"`
}

// Timeframes 返回需要加载的全部周期（去重，交易周期在前）。
func (m MarketConfig) Timeframes() []string {
	out := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	for _, tf := range []string{m.TradingTimeframe, m.RangeTimeframe, m.ConfirmTimeframe} {
		tf = strings.TrimSpace(tf)
		if tf == "" || seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out
}

type StrategyConfig struct {
	Name          string        `mapstructure:"name" yaml:"name"`
	RewardRatio   float64       `mapstructure:"reward_ratio" yaml:"reward_ratio"`
	MinBodyRatio  float64       `mapstructure:"min_body_ratio" yaml:"min_body_ratio"`
	Lookback      int           `mapstructure:"lookback" yaml:"lookback"`
	ReturnToEntry bool          `mapstructure:"return_to_entry" yaml:"return_to_entry"`
	Quality       QualityConfig `mapstructure:"quality" yaml:"quality"`
}

type QualityConfig struct {
	Enabled              bool    `mapstructure:"enabled" yaml:"enabled"`
	MinStars             int     `mapstructure:"min_stars" yaml:"min_stars"`
	RequireTrendMatch    bool    `mapstructure:"require_trend_match" yaml:"require_trend_match"`
	VolumeMultiplier     float64 `mapstructure:"volume_multiplier" yaml:"volume_multiplier"`
	VolatilityMultiplier float64 `mapstructure:"volatility_multiplier" yaml:"volatility_multiplier"`
	EMAPeriod            int     `mapstructure:"ema_period" yaml:"ema_period"`
	ATRPeriod            int     `mapstructure:"atr_period" yaml:"atr_period"`
	// Multipliers 按星级缩放单笔风险，key 为星级。
	Multipliers map[string]float64 `mapstructure:"multipliers" yaml:"multipliers"`
}

// StarMultipliers 将星级 key 解析为整数，非法 key 会被忽略。
func (q QualityConfig) StarMultipliers() map[int]float64 {
	if len(q.Multipliers) == 0 {
		return nil
	}
	out := make(map[int]float64, len(q.Multipliers))
	for k, v := range q.Multipliers {
		stars, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		out[stars] = v
	}
	return out
}

type RiskConfig struct {
	// Preset 为空或 micro；micro 针对小资金账户调整默认值。
	Preset             string  `mapstructure:"preset" yaml:"preset"`
	InitialBalance     float64 `mapstructure:"initial_balance" yaml:"initial_balance"`
	RiskPerTrade       float64 `mapstructure:"risk_per_trade" yaml:"risk_per_trade"`
	MaxDailyTrades     int     `mapstructure:"max_daily_trades" yaml:"max_daily_trades"`
	MaxDailyLossUSD    float64 `mapstructure:"max_daily_loss_usd" yaml:"max_daily_loss_usd"`
	MaxPositionSizeUSD float64 `mapstructure:"max_position_size_usd" yaml:"max_position_size_usd"`
	MinOrderValue      float64 `mapstructure:"min_order_value" yaml:"min_order_value"`
	SizePrecision      int     `mapstructure:"size_precision" yaml:"size_precision"`
	FeeRate            float64 `mapstructure:"fee_rate" yaml:"fee_rate"`
}

type SessionConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Timezone        string `mapstructure:"timezone" yaml:"timezone"`
	RangeStartTime  string `mapstructure:"range_start_time" yaml:"range_start_time"`
	RangeEndTime    string `mapstructure:"range_end_time" yaml:"range_end_time"`
	EntryCutoffTime string `mapstructure:"entry_cutoff_time" yaml:"entry_cutoff_time"`
	MarketOpen      string `mapstructure:"market_open" yaml:"market_open"`
	MarketClose     string `mapstructure:"market_close" yaml:"market_close"`
}

type BacktestConfig struct {
	Days            int    `mapstructure:"days" yaml:"days"`
	Start           string `mapstructure:"start" yaml:"start"`
	End             string `mapstructure:"end" yaml:"end"`
	ResultsDB       string `mapstructure:"results_db" yaml:"results_db"`
	CandlesDir      string `mapstructure:"candles_dir" yaml:"candles_dir"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min" yaml:"rate_limit_per_min"`
	MaxConcurrent   int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	ReportDir       string `mapstructure:"report_dir" yaml:"report_dir"`
	SnapshotPNG     bool   `mapstructure:"snapshot_png" yaml:"snapshot_png"`
}

type LiveConfig struct {
	PaperTrading bool   `mapstructure:"paper_trading" yaml:"paper_trading"`
	StateDB      string `mapstructure:"state_db" yaml:"state_db"`
	TradeLog     string `mapstructure:"trade_log" yaml:"trade_log"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
