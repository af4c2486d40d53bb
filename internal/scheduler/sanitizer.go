package scheduler

import (
	"time"

	"scalper/internal/market"
)

// DefaultKlineGrace 是收盘后等待交易所落定最后一根 K 线的时间。
const DefaultKlineGrace = 10 * time.Second

// ClosedOnly 截掉尾部尚未收盘（或仍在 grace 内）的 K 线。
// REST 接口总会把正在形成的那根放在最后；时间均为毫秒。
func ClosedOnly(klines []market.Candle, interval time.Duration, now time.Time, grace time.Duration) []market.Candle {
	if interval <= 0 {
		return klines
	}
	if grace < 0 {
		grace = 0
	}
	cutoff := now.Add(-grace).UnixMilli()
	end := len(klines)
	for end > 0 {
		last := klines[end-1]
		if last.OpenTime <= 0 || last.OpenTime+interval.Milliseconds() <= cutoff {
			break
		}
		end--
	}
	return klines[:end]
}
