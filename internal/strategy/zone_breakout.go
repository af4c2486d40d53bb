package strategy

import (
	"math"

	"scalper/internal/analysis/indicator"
)

const (
	NameZoneBreakout = "zone_breakout"

	zoneStopBuffer = 0.001
)

// ZoneBreakout 实体 K 线收盘突破前一个摆动位时入场。
type ZoneBreakout struct {
	MinBodyRatio  float64
	Lookback      int
	RewardRatio   float64
	ReturnToEntry bool
}

func NewZoneBreakout(minBodyRatio float64, lookback int, rewardRatio float64, returnToEntry bool) *ZoneBreakout {
	if minBodyRatio <= 0 {
		minBodyRatio = indicator.DefaultMinBodyRatio
	}
	if lookback <= 0 {
		lookback = indicator.DefaultLookback
	}
	if rewardRatio <= 0 {
		rewardRatio = 1
	}
	return &ZoneBreakout{MinBodyRatio: minBodyRatio, Lookback: lookback, RewardRatio: rewardRatio, ReturnToEntry: returnToEntry}
}

func (z *ZoneBreakout) Name() string         { return NameZoneBreakout }
func (z *ZoneBreakout) EntryMode() EntryMode { return EntryMarket }
func (z *ZoneBreakout) NeedsRange() bool     { return false }
func (z *ZoneBreakout) ExitRules() ExitRules {
	return ExitRules{ReturnToEntry: z.ReturnToEntry}
}

// Detect 先判空头，命中则不再检查多头。
func (z *ZoneBreakout) Detect(in Input) Detection {
	n := len(in.History)
	if n <= z.Lookback {
		return Detection{}
	}
	swings, ok := indicator.SwingLevels(in.History[n-1-z.Lookback : n-1])
	if !ok {
		return Detection{}
	}
	c := in.Bar
	body := indicator.FullBodied(c, z.MinBodyRatio)

	if c.Close < swings.PreviousLow && body.Bearish {
		stop := math.Max(c.High, swings.PreviousLow) * (1 + zoneStopBuffer)
		risk := stop - c.Close
		return found(Setup{
			Kind:       "zone_breakdown",
			Direction:  Short,
			Entry:      c.Close,
			StopLoss:   stop,
			TakeProfit: c.Close - risk*z.RewardRatio,
			Time:       c.OpenTime,
		})
	}
	if c.Close > swings.PreviousHigh && body.Bullish {
		stop := math.Min(c.Low, swings.PreviousHigh) * (1 - zoneStopBuffer)
		risk := c.Close - stop
		return found(Setup{
			Kind:       "zone_breakout",
			Direction:  Long,
			Entry:      c.Close,
			StopLoss:   stop,
			TakeProfit: c.Close + risk*z.RewardRatio,
			Time:       c.OpenTime,
		})
	}
	return Detection{}
}
