package market

import "time"

func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func (cs Candles) Highs() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func (cs Candles) Lows() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

func (cs Candles) Volumes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}

func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Tail 最多取末尾 n 根，不复制。
func (cs Candles) Tail(n int) Candles {
	if n <= 0 {
		return nil
	}
	if n >= len(cs) {
		return cs
	}
	return cs[len(cs)-n:]
}

// ClosedBy 收盘时间不晚于 ts 的前缀。
func (cs Candles) ClosedBy(ts int64) Candles {
	lo, hi := 0, len(cs)
	for lo < hi {
		mid := (lo + hi) / 2
		if cs[mid].CloseTime <= ts {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return cs[:lo]
}

// After 开盘时间严格晚于 ts 的部分。
func (cs Candles) After(ts int64) Candles {
	for i, c := range cs {
		if c.OpenTime > ts {
			return cs[i:]
		}
	}
	return nil
}

// FillCloseTimes 补齐缺失的收盘时间：open + interval - 1ms，与交易所一致。
func FillCloseTimes(cs []Candle, interval time.Duration) {
	step := interval.Milliseconds()
	if step <= 0 {
		return
	}
	for i := range cs {
		if cs[i].CloseTime == 0 {
			cs[i].CloseTime = cs[i].OpenTime + step - 1
		}
	}
}
