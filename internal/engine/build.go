package engine

import (
	"fmt"

	"scalper/internal/config"
	"scalper/internal/risk"
	"scalper/internal/session"
	"scalper/internal/strategy"
)

// SessionConfig 转换交易时段与日内限额配置。
func SessionConfig(cfg *config.Config) (session.Config, error) {
	loc, err := session.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return session.Config{}, err
	}
	out := session.Config{
		Location:       loc,
		Windowed:       cfg.Session.Enabled,
		MaxDailyTrades: cfg.Risk.MaxDailyTrades,
		MaxDailyLoss:   cfg.Risk.MaxDailyLossUSD,
	}
	clocks := []struct {
		raw    string
		target *session.ClockTime
	}{
		{cfg.Session.RangeStartTime, &out.RangeStart},
		{cfg.Session.RangeEndTime, &out.WindowStart},
		{cfg.Session.EntryCutoffTime, &out.EntryCutoff},
		{cfg.Session.MarketOpen, &out.MarketOpen},
		{cfg.Session.MarketClose, &out.MarketClose},
	}
	for _, c := range clocks {
		v, err := session.ParseClock(c.raw)
		if err != nil {
			return session.Config{}, err
		}
		*c.target = v
	}
	return out, nil
}

func StrategyOptions(cfg *config.Config) strategy.Options {
	s := cfg.Strategy
	return strategy.Options{
		Name:          s.Name,
		MinBodyRatio:  s.MinBodyRatio,
		Lookback:      s.Lookback,
		RewardRatio:   s.RewardRatio,
		ReturnToEntry: s.ReturnToEntry,
		Quality: strategy.QualityOptions{
			Enabled:              s.Quality.Enabled,
			MinStars:             s.Quality.MinStars,
			RequireTrendMatch:    s.Quality.RequireTrendMatch,
			VolumeMultiplier:     s.Quality.VolumeMultiplier,
			VolatilityMultiplier: s.Quality.VolatilityMultiplier,
			EMAPeriod:            s.Quality.EMAPeriod,
			ATRPeriod:            s.Quality.ATRPeriod,
		},
	}
}

// SizerConfig 转换风控配置；只有开启质量门控时才带星级倍数。
func SizerConfig(cfg *config.Config) risk.Config {
	out := risk.Config{
		RiskPerTrade:   cfg.Risk.RiskPerTrade,
		MaxPositionUSD: cfg.Risk.MaxPositionSizeUSD,
		MinOrderValue:  cfg.Risk.MinOrderValue,
		SizePrecision:  int32(cfg.Risk.SizePrecision),
	}
	if cfg.Strategy.Quality.Enabled {
		out.QualityMultipliers = cfg.Strategy.Quality.StarMultipliers()
	}
	return out
}

// FromConfig 按配置组装引擎，initialBalance<=0 时取 risk.initial_balance。
func FromConfig(cfg *config.Config, initialBalance float64, obs ...Observer) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	strat, err := strategy.New(StrategyOptions(cfg))
	if err != nil {
		return nil, err
	}
	sess, err := SessionConfig(cfg)
	if err != nil {
		return nil, err
	}
	if initialBalance <= 0 {
		initialBalance = cfg.Risk.InitialBalance
	}
	return New(Config{
		Strategy:  strat,
		Sizer:     risk.NewSizer(SizerConfig(cfg)),
		Scheduler: session.NewScheduler(sess),
		Ledger:    NewLedger(initialBalance),
		FeeRate:   cfg.Risk.FeeRate,
		Observers: obs,
	}), nil
}
