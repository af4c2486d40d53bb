package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"scalper/internal/config"
)

// StartupSummary 汇总启动时生效的关键配置，便于在日志里核对。
type StartupSummary struct {
	Market   MarketSummary
	Strategy StrategySummary
	Risk     RiskSummary
	Session  SessionSummary
	Storage  map[string]string
}

type MarketSummary struct {
	Exchange   string
	Symbol     string
	Timeframes []string
	Poll       int
	History    int
}

type StrategySummary struct {
	Name          string
	RewardRatio   float64
	ReturnToEntry bool
	QualityGate   bool
	MinStars      int
	Multipliers   map[string]float64
}

type RiskSummary struct {
	Preset         string
	InitialBalance float64
	RiskPerTrade   float64
	MaxTrades      int
	MaxLoss        float64
	MaxPosition    float64
	FeeRate        float64
}

type SessionSummary struct {
	Enabled  bool
	Timezone string
	Range    string
	Cutoff   string
	Market   string
}

func newStartupSummary(cfg *config.Config) *StartupSummary {
	if cfg == nil {
		return nil
	}
	return &StartupSummary{
		Market: MarketSummary{
			Exchange:   cfg.Market.Exchange,
			Symbol:     cfg.Market.Symbol,
			Timeframes: cfg.Market.Timeframes(),
			Poll:       cfg.Market.PollIntervalSeconds,
			History:    cfg.Market.HistoryLimit,
		},
		Strategy: StrategySummary{
			Name:          cfg.Strategy.Name,
			RewardRatio:   cfg.Strategy.RewardRatio,
			ReturnToEntry: cfg.Strategy.ReturnToEntry,
			QualityGate:   cfg.Strategy.Quality.Enabled,
			MinStars:      cfg.Strategy.Quality.MinStars,
			Multipliers:   cfg.Strategy.Quality.Multipliers,
		},
		Risk: RiskSummary{
			Preset:         cfg.Risk.Preset,
			InitialBalance: cfg.Risk.InitialBalance,
			RiskPerTrade:   cfg.Risk.RiskPerTrade,
			MaxTrades:      cfg.Risk.MaxDailyTrades,
			MaxLoss:        cfg.Risk.MaxDailyLossUSD,
			MaxPosition:    cfg.Risk.MaxPositionSizeUSD,
			FeeRate:        cfg.Risk.FeeRate,
		},
		Session: SessionSummary{
			Enabled:  cfg.Session.Enabled,
			Timezone: cfg.Session.Timezone,
			Range:    cfg.Session.RangeStartTime + "-" + cfg.Session.RangeEndTime,
			Cutoff:   cfg.Session.EntryCutoffTime,
			Market:   cfg.Session.MarketOpen + "-" + cfg.Session.MarketClose,
		},
		Storage: map[string]string{
			"candles":   cfg.Backtest.CandlesDir,
			"results":   cfg.Backtest.ResultsDB,
			"reports":   cfg.Backtest.ReportDir,
			"state":     cfg.Live.StateDB,
			"trade_log": cfg.Live.TradeLog,
		},
	}
}

// Render 返回多行文本形式的摘要。
func (s *StartupSummary) Render() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	title := "启动配置摘要 (STARTUP SUMMARY)"
	line("%s", strings.Repeat("=", 80))
	line("%*s", 40+len(title)/2, title)
	line("%s", strings.Repeat("=", 80))

	line("[行情 (MARKET)]")
	line("  交易所: %s", orDash(s.Market.Exchange))
	line("  交易对: %s", orDash(s.Market.Symbol))
	line("  周期: %s", formatList(s.Market.Timeframes))
	line("  轮询: %ds  历史长度: %d", s.Market.Poll, s.Market.History)
	line("")

	line("[策略 (STRATEGY)]")
	line("  名称: %s  R:R=%.2f  回本离场: %v", orDash(s.Strategy.Name), s.Strategy.RewardRatio, s.Strategy.ReturnToEntry)
	if s.Strategy.QualityGate {
		line("  质量过滤: 开启 (min stars %d)", s.Strategy.MinStars)
		line("  星级倍数: %s", formatMultipliers(s.Strategy.Multipliers))
	} else {
		line("  质量过滤: 关闭")
	}
	line("")

	line("[风控 (RISK)]")
	if s.Risk.Preset != "" {
		line("  预设: %s", s.Risk.Preset)
	}
	line("  初始资金: $%.2f  单笔风险: %.2f%%", s.Risk.InitialBalance, s.Risk.RiskPerTrade*100)
	line("  每日上限: %d 笔 / $%.2f", s.Risk.MaxTrades, s.Risk.MaxLoss)
	line("  最大仓位: $%.2f  手续费: %.4f", s.Risk.MaxPosition, s.Risk.FeeRate)
	line("")

	line("[时段 (SESSION)]")
	if s.Session.Enabled {
		line("  时区: %s  区间: %s  截止: %s", orDash(s.Session.Timezone), s.Session.Range, orDash(s.Session.Cutoff))
	} else {
		line("  (未启用)")
	}
	line("  交易时间: %s", s.Session.Market)
	line("")

	line("[存储 (STORAGE)]")
	keys := make([]string, 0, len(s.Storage))
	for k := range s.Storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line("  %-10s %s", k+":", orDash(s.Storage[k]))
	}
	line("%s", strings.Repeat("=", 80))
	return b.String()
}

func (s *StartupSummary) Print() { s.Fprint(os.Stdout) }

func (s *StartupSummary) Fprint(w io.Writer) {
	if s == nil || w == nil {
		return
	}
	_, _ = io.WriteString(w, s.Render())
}

func formatMultipliers(m map[string]float64) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s★=%.2f", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
