package strategy

import (
	"testing"

	"scalper/internal/analysis/indicator"
	"scalper/internal/market"
	"scalper/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(ts int64, o, h, l, c float64) market.Candle {
	return market.Candle{OpenTime: ts, Open: o, High: h, Low: l, Close: c, Volume: 10}
}

func zoneHistory(last market.Candle) market.Candles {
	lows := []float64{10, 8, 9, 7, 9}
	highs := []float64{12, 11, 12, 10, 12}
	out := make(market.Candles, 0, len(lows)+1)
	for i := range lows {
		out = append(out, bar(int64(i), lows[i]+0.5, highs[i], lows[i], highs[i]-0.5))
	}
	return append(out, last)
}

func TestZoneBreakoutDetect(t *testing.T) {
	z := NewZoneBreakout(0.6, 5, 1, true)

	t.Run("sell below previous swing low", func(t *testing.T) {
		c := bar(5, 8.5, 8.6, 5.9, 6)
		det := z.Detect(Input{Bar: c, History: zoneHistory(c)})
		require.True(t, det.OK)
		assert.Equal(t, Short, det.Setup.Direction)
		assert.Equal(t, 6.0, det.Setup.Entry)
		assert.InDelta(t, 8.6086, det.Setup.StopLoss, 1e-9)
		assert.InDelta(t, 3.3914, det.Setup.TakeProfit, 1e-9)
	})

	t.Run("buy above previous swing high", func(t *testing.T) {
		c := bar(5, 11, 13.1, 10.9, 13)
		det := z.Detect(Input{Bar: c, History: zoneHistory(c)})
		require.True(t, det.OK)
		assert.Equal(t, Long, det.Setup.Direction)
		assert.InDelta(t, 10.8891, det.Setup.StopLoss, 1e-9)
		assert.InDelta(t, 15.1109, det.Setup.TakeProfit, 1e-9)
		assert.InDelta(t, det.Setup.Risk(), det.Setup.TakeProfit-det.Setup.Entry, 1e-9)
	})

	t.Run("weak body is ignored", func(t *testing.T) {
		c := bar(5, 11, 14, 10, 13)
		assert.False(t, z.Detect(Input{Bar: c, History: zoneHistory(c)}).OK)
	})

	t.Run("short history", func(t *testing.T) {
		c := bar(5, 11, 13.1, 10.9, 13)
		h := zoneHistory(c)
		assert.False(t, z.Detect(Input{Bar: c, History: h[1:]}).OK)
	})

	assert.Equal(t, EntryMarket, z.EntryMode())
	assert.True(t, z.ExitRules().ReturnToEntry)
	assert.False(t, z.NeedsRange())
}

func bullishGap() market.Candles {
	return market.Candles{
		bar(1, 99.6, 100, 99.5, 99.9),
		bar(2, 100, 101.2, 99.9, 100.6),
		bar(3, 101.05, 101.5, 101, 101.1),
	}
}

func TestRangeFVGDetect(t *testing.T) {
	f := NewRangeFVG(2, false)
	rng := session.ReferenceRange{High: 100.5, Low: 99, Date: "2024-03-04", Marked: true}

	t.Run("bullish gap entry at midpoint", func(t *testing.T) {
		h := bullishGap()
		det := f.Detect(Input{Bar: h[2], History: h, Range: rng})
		require.True(t, det.OK)
		s := det.Setup
		assert.Equal(t, Long, s.Direction)
		assert.InDelta(t, 100.5, s.Entry, 1e-9)
		assert.InDelta(t, 99.5*0.999, s.StopLoss, 1e-9)
		assert.InDelta(t, 2*(s.Entry-s.StopLoss), s.TakeProfit-s.Entry, 1e-9)
		assert.Equal(t, int64(3), s.Time)
	})

	t.Run("bearish gap", func(t *testing.T) {
		h := market.Candles{
			bar(1, 101, 101.2, 100, 100.1),
			bar(2, 100, 100.1, 98.5, 98.6),
			bar(3, 98.8, 99, 98.2, 98.4),
		}
		det := f.Detect(Input{Bar: h[2], History: h, Range: rng})
		require.True(t, det.OK)
		s := det.Setup
		assert.Equal(t, Short, s.Direction)
		assert.InDelta(t, 99.5, s.Entry, 1e-9)
		assert.InDelta(t, 101.3012, s.StopLoss, 1e-9)
		assert.InDelta(t, 95.8976, s.TakeProfit, 1e-9)
	})

	t.Run("unmarked range suppresses detection", func(t *testing.T) {
		h := bullishGap()
		assert.False(t, f.Detect(Input{Bar: h[2], History: h}).OK)
	})

	t.Run("no close beyond range", func(t *testing.T) {
		h := bullishGap()
		high := session.ReferenceRange{High: 102, Low: 99, Marked: true}
		assert.False(t, f.Detect(Input{Bar: h[2], History: h, Range: high}).OK)
	})

	t.Run("pattern must touch the range", func(t *testing.T) {
		h := bullishGap()
		low := session.ReferenceRange{High: 99, Low: 98, Marked: true}
		assert.False(t, f.Detect(Input{Bar: h[2], History: h, Range: low}).OK)
	})

	t.Run("overlapping candles", func(t *testing.T) {
		h := bullishGap()
		h[2].Low = 99.9
		assert.False(t, f.Detect(Input{Bar: h[2], History: h, Range: rng}).OK)
	})

	assert.Equal(t, EntryLimit, f.EntryMode())
	assert.False(t, f.ExitRules().ReturnToEntry)
	assert.True(t, f.NeedsRange())
}

// risingHistory 稳定上涨、真实波幅恒定，倒数第二根放量。
func risingHistory(n int) market.Candles {
	out := make(market.Candles, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = market.Candle{OpenTime: int64(i), Open: c - 0.2, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 10}
	}
	out[n-2].Volume = 50
	return out
}

func testScorer() QualityScorer {
	return QualityScorer{VolumeMultiplier: 2, VolatilityMultiplier: 1.3, EMAPeriod: 50, ATRPeriod: 14}
}

func TestQualityScorer(t *testing.T) {
	h := risingHistory(60)

	long := testScorer().Score(Setup{Direction: Long}, h, nil)
	assert.Equal(t, 3, long.Stars)
	assert.True(t, long.Volume)
	assert.False(t, long.Volatility)
	assert.True(t, long.TrendMatch)
	assert.False(t, long.ConfirmMatch)

	withConfirm := testScorer().Score(Setup{Direction: Long}, h, h)
	assert.Equal(t, 4, withConfirm.Stars)

	short := testScorer().Score(Setup{Direction: Short}, h, nil)
	assert.Equal(t, 2, short.Stars)

	bare := testScorer().Score(Setup{Direction: Long}, nil, nil)
	assert.Equal(t, 1, bare.Stars)
}

func TestQualityScorerConfirmUsesWholeSeries(t *testing.T) {
	// 前段低位会拉低以首根收盘为种子的 EMA；只取尾部 101 根时结果是 neutral。
	confirm := make(market.Candles, 0, 200)
	for i := 0; i < 200; i++ {
		c := 100.0
		switch {
		case i < 99:
			c = 50
		case i == 199:
			c = 100.5
		}
		confirm = append(confirm, market.Candle{OpenTime: int64(i), Open: c, High: c, Low: c, Close: c, Volume: 10})
	}
	b := testScorer().Score(Setup{Direction: Long}, nil, confirm)
	assert.Equal(t, indicator.TrendBullish, b.ConfirmTrend)
	assert.True(t, b.ConfirmMatch)

	tail := testScorer().Score(Setup{Direction: Long}, nil, confirm.Tail(101))
	assert.Equal(t, indicator.TrendNeutral, tail.ConfirmTrend)
}

type fixedStrategy struct {
	RangeFVG
	setup Setup
}

func (f *fixedStrategy) Detect(Input) Detection { return found(f.setup) }

func TestQualityGate(t *testing.T) {
	h := risingHistory(60)
	in := Input{Bar: h[len(h)-1], History: h}

	t.Run("below minimum stars", func(t *testing.T) {
		g := NewQualityGate(&fixedStrategy{setup: Setup{Direction: Long}}, testScorer(), 4, true)
		det := g.Detect(in)
		assert.False(t, det.OK)
		assert.Equal(t, "Low quality (3 stars, need 4+)", det.Skipped)
		assert.Equal(t, 3, det.Setup.Quality)
	})

	t.Run("accepted", func(t *testing.T) {
		g := NewQualityGate(&fixedStrategy{setup: Setup{Direction: Long}}, testScorer(), 3, true)
		det := g.Detect(in)
		require.True(t, det.OK)
		assert.Equal(t, 3, det.Setup.Quality)
	})

	t.Run("trend mismatch", func(t *testing.T) {
		g := NewQualityGate(&fixedStrategy{setup: Setup{Direction: Short}}, testScorer(), 2, true)
		det := g.Detect(in)
		assert.False(t, det.OK)
		assert.Equal(t, "Trend mismatch (BULLISH vs BEARISH)", det.Skipped)
	})

	t.Run("trend match optional", func(t *testing.T) {
		g := NewQualityGate(&fixedStrategy{setup: Setup{Direction: Short}}, testScorer(), 2, false)
		assert.True(t, g.Detect(in).OK)
	})
}

func TestNew(t *testing.T) {
	s, err := New(Options{Name: "zone_breakout", ReturnToEntry: true})
	require.NoError(t, err)
	assert.Equal(t, NameZoneBreakout, s.Name())
	assert.Equal(t, 1.0, s.(*ZoneBreakout).RewardRatio)

	s, err = New(Options{Name: "RANGE_FVG", Quality: QualityOptions{Enabled: true, MinStars: 4}})
	require.NoError(t, err)
	gate, ok := s.(*QualityGate)
	require.True(t, ok)
	assert.Equal(t, NameRangeFVG, gate.Name())
	assert.Equal(t, EntryLimit, gate.EntryMode())

	_, err = New(Options{Name: "martingale"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
