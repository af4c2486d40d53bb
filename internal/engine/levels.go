package engine

import (
	"math"

	"scalper/internal/market"
	"scalper/internal/strategy"

	"github.com/shopspring/decimal"
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalLTE(a, b float64) bool { return decFromFloat(a).Cmp(decFromFloat(b)) <= 0 }
func decimalGTE(a, b float64) bool { return decFromFloat(a).Cmp(decFromFloat(b)) >= 0 }

// adverseTouched 多单看最低价、空单看最高价是否触及 level。
func adverseTouched(dir strategy.Direction, c market.Candle, level float64) bool {
	if level <= 0 {
		return false
	}
	if dir == strategy.Short {
		return decimalGTE(c.High, level)
	}
	return decimalLTE(c.Low, level)
}

func favorableTouched(dir strategy.Direction, c market.Candle, level float64) bool {
	if level <= 0 {
		return false
	}
	if dir == strategy.Short {
		return decimalLTE(c.Low, level)
	}
	return decimalGTE(c.High, level)
}

// limitFilled 限价单是否被本根 K 线扫到。
func limitFilled(o Order, c market.Candle) bool {
	return adverseTouched(o.Direction, c, o.Entry)
}

// exitFor 离场优先级：止损 > 止盈 > 回到入场价（可选）。
func exitFor(p Position, c market.Candle, rules strategy.ExitRules) (float64, string, bool) {
	switch {
	case adverseTouched(p.Direction, c, p.StopLoss):
		return p.StopLoss, ReasonStopLoss, true
	case favorableTouched(p.Direction, c, p.TakeProfit):
		return p.TakeProfit, ReasonTakeProfit, true
	case rules.ReturnToEntry && adverseTouched(p.Direction, c, p.Entry):
		return p.Entry, ReasonReturnToEntry, true
	}
	return 0, "", false
}

// settle 返回毛盈亏、按入场名义价值计的手续费以及净盈亏。
func settle(p Position, exit, feeRate float64) (gross, fee, net float64) {
	size := decFromFloat(p.Size)
	diff := decFromFloat(exit).Sub(decFromFloat(p.Entry))
	if p.Direction == strategy.Short {
		diff = diff.Neg()
	}
	g := diff.Mul(size)
	f := decFromFloat(feeRate).Mul(size).Mul(decFromFloat(p.Entry))
	return decToFloat(g), decToFloat(f), decToFloat(g.Sub(f))
}
