package strategy

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Options 扁平化的策略配置。
type Options struct {
	Name          string
	MinBodyRatio  float64
	Lookback      int
	RewardRatio   float64
	ReturnToEntry bool
	Quality       QualityOptions
}

type QualityOptions struct {
	Enabled              bool
	MinStars             int
	RequireTrendMatch    bool
	VolumeMultiplier     float64
	VolatilityMultiplier float64
	EMAPeriod            int
	ATRPeriod            int
}

// New 按名称创建策略，开启质量评分时外包一层 QualityGate。
func New(opts Options) (Strategy, error) {
	var base Strategy
	switch strings.ToLower(strings.TrimSpace(opts.Name)) {
	case NameZoneBreakout:
		base = NewZoneBreakout(opts.MinBodyRatio, opts.Lookback, opts.RewardRatio, opts.ReturnToEntry)
	case NameRangeFVG:
		base = NewRangeFVG(opts.RewardRatio, opts.ReturnToEntry)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Name)
	}
	if !opts.Quality.Enabled {
		return base, nil
	}
	q := opts.Quality
	scorer := QualityScorer{
		VolumeMultiplier:     q.VolumeMultiplier,
		VolatilityMultiplier: q.VolatilityMultiplier,
		EMAPeriod:            q.EMAPeriod,
		ATRPeriod:            q.ATRPeriod,
	}
	return NewQualityGate(base, scorer, q.MinStars, q.RequireTrendMatch), nil
}
