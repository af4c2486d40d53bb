// Package risk 按账户余额和止损距离计算仓位。
package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultQualityMultipliers 按星级缩放单笔风险，表中没有的星级直接拒单。
var DefaultQualityMultipliers = map[int]float64{5: 1.0, 4: 0.75}

type Config struct {
	RiskPerTrade float64
	// 单笔风险金额上限，0 不限制
	MaxPositionUSD float64
	MinOrderValue  float64
	// 保留小数位，负数表示不取整
	SizePrecision int32
	// 仅对带评分的 setup 生效
	QualityMultipliers map[int]float64
}

type Sizer struct {
	cfg Config
}

func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

func (s *Sizer) Config() Config { return s.cfg }

// Multiplier 星级对应的风险倍数；0 星表示未评分，倍数为 1。
func (s *Sizer) Multiplier(quality int) float64 {
	if quality <= 0 || len(s.cfg.QualityMultipliers) == 0 {
		return 1
	}
	return s.cfg.QualityMultipliers[quality]
}

func (s *Sizer) RiskAmount(balance float64, quality int) float64 {
	amount := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(s.cfg.RiskPerTrade)).
		Mul(decimal.NewFromFloat(s.Multiplier(quality)))
	if s.cfg.MaxPositionUSD > 0 {
		amount = decimal.Min(amount, decimal.NewFromFloat(s.cfg.MaxPositionUSD))
	}
	f, _ := amount.Float64()
	return f
}

// Size 返回下单数量，返回 0 表示不下单。
func (s *Sizer) Size(entry, stop, balance float64, quality int) float64 {
	if invalid(entry) || invalid(stop) || invalid(balance) || balance <= 0 || entry <= 0 {
		return 0
	}
	perUnit := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stop)).Abs()
	if perUnit.IsZero() {
		return 0
	}
	amount := decimal.NewFromFloat(s.RiskAmount(balance, quality))
	if !amount.IsPositive() {
		return 0
	}
	size := amount.Div(perUnit)
	if s.cfg.SizePrecision >= 0 {
		size = size.RoundBank(s.cfg.SizePrecision)
	}
	if !size.IsPositive() {
		return 0
	}
	notional := size.Mul(decimal.NewFromFloat(entry))
	if notional.LessThan(decimal.NewFromFloat(s.cfg.MinOrderValue)) {
		return 0
	}
	f, _ := size.Float64()
	return f
}

func invalid(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
