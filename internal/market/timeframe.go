package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe 描述 K 线周期：内部 key、时长，以及交易所接口使用的 interval。
type Timeframe struct {
	Key            string
	Duration       time.Duration
	SourceInterval string
}

// 按时长升序；Binance 与 gate 的 interval 字面量一致。
var timeframes = []Timeframe{
	newTimeframe("1m", time.Minute),
	newTimeframe("3m", 3*time.Minute),
	newTimeframe("5m", 5*time.Minute),
	newTimeframe("15m", 15*time.Minute),
	newTimeframe("30m", 30*time.Minute),
	newTimeframe("1h", time.Hour),
	newTimeframe("4h", 4*time.Hour),
	newTimeframe("1d", 24*time.Hour),
}

func newTimeframe(key string, d time.Duration) Timeframe {
	return Timeframe{Key: key, Duration: d, SourceInterval: key}
}

func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	for _, tf := range timeframes {
		if tf.Key == key {
			return tf, nil
		}
	}
	return Timeframe{}, fmt.Errorf("unsupported timeframe: %q", input)
}

// SupportedTimeframes 按时长升序返回全部 key。
func SupportedTimeframes() []string {
	out := make([]string, len(timeframes))
	for i, tf := range timeframes {
		out[i] = tf.Key
	}
	return out
}

func (tf Timeframe) Millis() int64 { return tf.Duration.Milliseconds() }

// Floor 返回 ts 所在 K 线的开盘时间（毫秒）。
func (tf Timeframe) Floor(ts int64) int64 {
	step := tf.Millis()
	if step <= 0 {
		return ts
	}
	m := ts % step
	if m < 0 {
		m += step
	}
	return ts - m
}

// AlignRange 把 [start,end] 对齐到周期网格；顺序颠倒时自动交换。
func (tf Timeframe) AlignRange(start, end int64) (int64, int64) {
	if end < start {
		start, end = end, start
	}
	return tf.Floor(start), tf.Floor(end)
}

// ExpectedCandles 是对齐区间 [start,end] 内应有的 K 线根数。
func (tf Timeframe) ExpectedCandles(start, end int64) int64 {
	step := tf.Millis()
	if end < start || step <= 0 {
		return 0
	}
	return (end-start)/step + 1
}

// LastClosedOpen 返回 now 时刻最近一根已收盘 K 线的开盘时间。
func (tf Timeframe) LastClosedOpen(now time.Time) int64 {
	return tf.Floor(now.UnixMilli()) - tf.Millis()
}
