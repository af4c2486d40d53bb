package strategy

import (
	"fmt"

	"scalper/internal/analysis/indicator"
	"scalper/internal/market"
)

const (
	MaxStars = 5

	// 评分只看交易周期最近 101 根
	scoreWindow = 101
)

// QualityScorer 给 setup 打 1~5 星。
type QualityScorer struct {
	VolumeMultiplier     float64
	VolatilityMultiplier float64
	EMAPeriod            int
	ATRPeriod            int
}

// Breakdown 各评分项命中情况。
type Breakdown struct {
	Stars        int
	Volume       bool
	Volatility   bool
	Trend        indicator.Trend
	TrendMatch   bool
	ConfirmTrend indicator.Trend
	ConfirmMatch bool
}

func trendFor(d Direction) indicator.Trend {
	if d == Short {
		return indicator.TrendBearish
	}
	return indicator.TrendBullish
}

// Score 基于交易周期历史和已收盘的确认周期打分。
// 成交量检查落在形态中间那根；确认周期 EMA 用整段序列。
func (q QualityScorer) Score(setup Setup, history, confirm market.Candles) Breakdown {
	b := Breakdown{Stars: 1, Trend: indicator.TrendNeutral, ConfirmTrend: indicator.TrendNeutral}
	window := history.Tail(scoreWindow)
	want := trendFor(setup.Direction)

	if len(history) >= 2 {
		b.Volume = indicator.VolumeOK(history[len(history)-2], window, q.VolumeMultiplier)
	}
	b.Volatility = indicator.VolatilityOK(window, q.ATRPeriod, q.VolatilityMultiplier)
	b.Trend = indicator.TrendOf(window, q.EMAPeriod)
	b.TrendMatch = b.Trend == want
	if len(confirm) > 0 {
		b.ConfirmTrend = indicator.TrendOf(confirm, q.EMAPeriod)
		b.ConfirmMatch = b.ConfirmTrend == want
	}
	for _, hit := range []bool{b.Volume, b.Volatility, b.TrendMatch, b.ConfirmMatch} {
		if hit {
			b.Stars++
		}
	}
	return b
}

// QualityGate 包装 Strategy：低于 MinStars，或开启 RequireTrendMatch 时
// 与交易周期趋势相反的 setup 转为跳过。
type QualityGate struct {
	Strategy
	Scorer            QualityScorer
	MinStars          int
	RequireTrendMatch bool
}

func NewQualityGate(inner Strategy, scorer QualityScorer, minStars int, requireTrendMatch bool) *QualityGate {
	return &QualityGate{Strategy: inner, Scorer: scorer, MinStars: minStars, RequireTrendMatch: requireTrendMatch}
}

func (g *QualityGate) Detect(in Input) Detection {
	det := g.Strategy.Detect(in)
	if !det.OK {
		return det
	}
	b := g.Scorer.Score(det.Setup, in.History, in.Confirm)
	det.Setup.Quality = b.Stars
	if b.Stars < g.MinStars {
		return skipped(det.Setup, fmt.Sprintf("Low quality (%d stars, need %d+)", b.Stars, g.MinStars))
	}
	if g.RequireTrendMatch && !b.TrendMatch {
		return skipped(det.Setup, fmt.Sprintf("Trend mismatch (%s vs %s)", b.Trend, trendFor(det.Setup.Direction)))
	}
	return det
}
