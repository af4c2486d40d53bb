package config

import (
	"fmt"
	"strings"
	"time"

	"scalper/internal/market"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("market.symbol cannot be empty")
	}
	switch m.Exchange {
	case "binance", "gate":
	default:
		return fmt.Errorf("market.exchange must be binance or gate, got %q", m.Exchange)
	}
	for key, tf := range map[string]string{
		"market.trading_timeframe": m.TradingTimeframe,
		"market.range_timeframe":   m.RangeTimeframe,
		"market.confirm_timeframe": m.ConfirmTimeframe,
	} {
		if _, err := market.ParseTimeframe(tf); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if m.HistoryLimit < 3 || m.HistoryLimit > 1000 {
		return fmt.Errorf("market.history_limit must be within [3,1000]")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	switch s.Name {
	case "zone_breakout", "range_fvg":
	default:
		return fmt.Errorf("strategy.name must be zone_breakout or range_fvg, got %q", s.Name)
	}
	if s.RewardRatio <= 0 {
		return fmt.Errorf("strategy.reward_ratio must be > 0")
	}
	if s.MinBodyRatio <= 0 || s.MinBodyRatio > 1 {
		return fmt.Errorf("strategy.min_body_ratio must be within (0,1]")
	}
	if s.Lookback < 3 {
		return fmt.Errorf("strategy.lookback must be >= 3")
	}
	q := s.Quality
	if q.MinStars < 1 || q.MinStars > 5 {
		return fmt.Errorf("strategy.quality.min_stars must be within [1,5]")
	}
	if q.EMAPeriod <= 0 || q.ATRPeriod <= 0 {
		return fmt.Errorf("strategy.quality periods must be > 0")
	}
	for k, v := range q.Multipliers {
		if v < 0 {
			return fmt.Errorf("strategy.quality.multipliers.%s must be >= 0", k)
		}
	}
	if len(q.StarMultipliers()) != len(q.Multipliers) {
		return fmt.Errorf("strategy.quality.multipliers keys must be star counts")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.Preset != "" && r.Preset != presetMicro {
		return fmt.Errorf("risk.preset must be empty or %q", presetMicro)
	}
	if r.InitialBalance <= 0 {
		return fmt.Errorf("risk.initial_balance must be > 0")
	}
	if r.RiskPerTrade <= 0 || r.RiskPerTrade > 1 {
		return fmt.Errorf("risk.risk_per_trade must be within (0,1]")
	}
	if r.MaxDailyTrades < 0 || r.MaxDailyLossUSD < 0 {
		return fmt.Errorf("risk daily limits must be >= 0")
	}
	if r.MaxPositionSizeUSD < 0 || r.MinOrderValue < 0 {
		return fmt.Errorf("risk position bounds must be >= 0")
	}
	if r.FeeRate < 0 || r.FeeRate >= 1 {
		return fmt.Errorf("risk.fee_rate must be within [0,1)")
	}
	if r.SizePrecision > 12 {
		return fmt.Errorf("risk.size_precision must be <= 12")
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	clocks := map[string]string{
		"session.range_start_time":  s.RangeStartTime,
		"session.range_end_time":    s.RangeEndTime,
		"session.entry_cutoff_time": s.EntryCutoffTime,
		"session.market_open":       s.MarketOpen,
		"session.market_close":      s.MarketClose,
	}
	parsed := make(map[string]int, len(clocks))
	for key, raw := range clocks {
		minutes, err := parseClockMinutes(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed[key] = minutes
	}
	if parsed["session.range_end_time"] > parsed["session.entry_cutoff_time"] {
		return fmt.Errorf("session.range_end_time must not be after session.entry_cutoff_time")
	}
	if parsed["session.market_open"] > parsed["session.market_close"] {
		return fmt.Errorf("session.market_open must not be after session.market_close")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.Days < 0 {
		return fmt.Errorf("backtest.days must be >= 0")
	}
	for key, raw := range map[string]string{"backtest.start": b.Start, "backtest.end": b.End} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s must be YYYY-MM-DD: %w", key, err)
		}
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	return nil
}

func parseClockMinutes(raw string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}
