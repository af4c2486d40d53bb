// Package indicator 检测器用到的 K 线特征与指标计算。
package indicator

import (
	"math"

	"scalper/internal/market"

	talib "github.com/markcheno/go-talib"
)

const (
	DefaultMinBodyRatio = 0.6
	DefaultLookback     = 20

	// 偏离 EMA 超过 1% 才算趋势
	trendBand = 0.01
	atrAverageWindow = 50
	volumeAverageWindow = 20
)

type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendNeutral Trend = "NEUTRAL"
)

// BodyClass 实体 K 线分类。
type BodyClass struct {
	Bullish   bool
	Bearish   bool
	BodyRatio float64
}

// FullBodied 判断实体 K 线；高低点相等时两者皆否。
func FullBodied(c market.Candle, minBodyRatio float64) BodyClass {
	rng := c.Range()
	if rng <= 0 {
		return BodyClass{}
	}
	ratio := c.Body() / rng
	return BodyClass{
		Bullish:   c.Close > c.Open && ratio >= minBodyRatio,
		Bearish:   c.Close < c.Open && ratio >= minBodyRatio,
		BodyRatio: ratio,
	}
}

type Swings struct {
	PreviousLow  float64
	PreviousHigh float64
}

// SwingLevels 找居中 3 根的局部极值，取倒数第二个摆动高/低点；
// 不足两个时退回窗口最高/最低。窗口少于 3 根时 ok=false。
func SwingLevels(window []market.Candle) (Swings, bool) {
	n := len(window)
	if n < 3 {
		return Swings{}, false
	}
	cs := market.Candles(window)
	lows, highs := cs.Lows(), cs.Highs()
	rollMin := talib.Min(lows, 3)
	rollMax := talib.Max(highs, 3)

	var swingLows, swingHighs []float64
	for i := 1; i <= n-2; i++ {
		if lows[i] == rollMin[i+1] {
			swingLows = append(swingLows, lows[i])
		}
		if highs[i] == rollMax[i+1] {
			swingHighs = append(swingHighs, highs[i])
		}
	}
	out := Swings{PreviousLow: minOf(lows), PreviousHigh: maxOf(highs)}
	if len(swingLows) >= 2 {
		out.PreviousLow = swingLows[len(swingLows)-2]
	}
	if len(swingHighs) >= 2 {
		out.PreviousHigh = swingHighs[len(swingHighs)-2]
	}
	return out, true
}

// EMA alpha = 2/(period+1)，以首个值为种子（不用 SMA 预热）。
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// TrueRange max(high-low, |high-prevClose|, |low-prevClose|)，首根用 high-low。
func TrueRange(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATR 真实波幅的简单移动平均，前 period-1 个为 NaN。
func ATR(candles []market.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(candles) < period {
		return out
	}
	sma := talib.Sma(TrueRange(candles), period)
	for i := period - 1; i < len(sma); i++ {
		out[i] = sma[i]
	}
	return out
}

// TrendOf 最新收盘价对比窗口 EMA。
func TrendOf(window []market.Candle, emaPeriod int) Trend {
	if emaPeriod <= 0 || len(window) < emaPeriod {
		return TrendNeutral
	}
	ema := EMA(market.Candles(window).Closes(), emaPeriod)
	price := window[len(window)-1].Close
	ref := ema[len(ema)-1]
	switch {
	case price > ref*(1+trendBand):
		return TrendBullish
	case price < ref*(1-trendBand):
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// VolatilityOK 最新 ATR 是否超过近期 ATR 均值的 multiplier 倍。
func VolatilityOK(window []market.Candle, atrPeriod int, multiplier float64) bool {
	if atrPeriod <= 0 || len(window) < atrPeriod*2 {
		return false
	}
	atr := ATR(window, atrPeriod)
	current := atr[len(atr)-1]
	if math.IsNaN(current) {
		return false
	}
	avg, ok := nanMean(atr[max(0, len(atr)-atrAverageWindow):])
	if !ok {
		return false
	}
	return current > avg*multiplier
}

// VolumeOK c 的成交量是否超过窗口近期均量的 multiplier 倍。
func VolumeOK(c market.Candle, window []market.Candle, multiplier float64) bool {
	if len(window) < volumeAverageWindow {
		return false
	}
	tail := market.Candles(window).Tail(volumeAverageWindow)
	avg, _ := nanMean(tail.Volumes())
	return c.Volume > avg*multiplier
}

func nanMean(values []float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func minOf(values []float64) float64 {
	out := math.Inf(1)
	for _, v := range values {
		out = math.Min(out, v)
	}
	return out
}

func maxOf(values []float64) float64 {
	out := math.Inf(-1)
	for _, v := range values {
		out = math.Max(out, v)
	}
	return out
}
