package strategy

import (
	"scalper/internal/market"
)

const (
	NameRangeFVG = "range_fvg"

	fvgStopBuffer = 0.001
)

// RangeFVG 三根 K 线 FVG 突破当日参考区间且触及边界时触发，
// 限价挂在缺口中点。
type RangeFVG struct {
	RewardRatio   float64
	ReturnToEntry bool
}

func NewRangeFVG(rewardRatio float64, returnToEntry bool) *RangeFVG {
	if rewardRatio <= 0 {
		rewardRatio = 2
	}
	return &RangeFVG{RewardRatio: rewardRatio, ReturnToEntry: returnToEntry}
}

func (f *RangeFVG) Name() string         { return NameRangeFVG }
func (f *RangeFVG) EntryMode() EntryMode { return EntryLimit }
func (f *RangeFVG) NeedsRange() bool     { return true }
func (f *RangeFVG) ExitRules() ExitRules {
	return ExitRules{ReturnToEntry: f.ReturnToEntry}
}

func (f *RangeFVG) Detect(in Input) Detection {
	if !in.Range.Marked || len(in.History) < 3 {
		return Detection{}
	}
	n := len(in.History)
	c1, c2, c3 := in.History[n-3], in.History[n-2], in.History[n-1]
	trio := [3]market.Candle{c1, c2, c3}
	rng := in.Range

	if gapBottom, gapTop := c1.High, c3.Low; gapTop > gapBottom &&
		anyOf(trio, func(c market.Candle) bool { return c.Close > rng.High }) &&
		anyOf(trio, func(c market.Candle) bool { return c.Low <= rng.High }) {
		entry := (gapBottom + gapTop) / 2
		stop := c1.Low * (1 - fvgStopBuffer)
		return found(Setup{
			Kind:       "bullish_fvg",
			Direction:  Long,
			Entry:      entry,
			StopLoss:   stop,
			TakeProfit: entry + (entry-stop)*f.RewardRatio,
			Time:       c3.OpenTime,
		})
	}

	if gapTop, gapBottom := c1.Low, c3.High; gapTop > gapBottom &&
		anyOf(trio, func(c market.Candle) bool { return c.Close < rng.Low }) &&
		anyOf(trio, func(c market.Candle) bool { return c.High >= rng.Low }) {
		entry := (gapBottom + gapTop) / 2
		stop := c1.High * (1 + fvgStopBuffer)
		return found(Setup{
			Kind:       "bearish_fvg",
			Direction:  Short,
			Entry:      entry,
			StopLoss:   stop,
			TakeProfit: entry - (stop-entry)*f.RewardRatio,
			Time:       c3.OpenTime,
		})
	}
	return Detection{}
}

func anyOf(cs [3]market.Candle, pred func(market.Candle) bool) bool {
	for _, c := range cs {
		if pred(c) {
			return true
		}
	}
	return false
}
