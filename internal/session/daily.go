// Package session 日内交易规则：交易日、参考区间、入场窗口与日内限额。
package session

import (
	"time"

	"scalper/internal/market"
)

const dayLayout = "2006-01-02"

// CanEnter 拒绝入场时的原因。
const (
	BlockOutsideWindow = "outside trading window"
	BlockMaxTrades     = "max daily trades reached"
	BlockMaxLoss       = "max daily loss reached"
)

type Config struct {
	Location *time.Location
	// 开启参考区间和入场窗口；关闭时随时可入场，只受日内限额约束。
	Windowed       bool
	RangeStart     ClockTime
	WindowStart    ClockTime
	EntryCutoff    ClockTime
	MarketOpen     ClockTime
	MarketClose    ClockTime
	MaxDailyTrades int
	MaxDailyLoss   float64
}

// ReferenceRange 当日参考 K 线的高低点。
type ReferenceRange struct {
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Date   string  `json:"date"`
	Marked bool    `json:"marked"`
}

// DayState 可序列化的当日状态。
type DayState struct {
	Key    string         `json:"key"`
	Range  ReferenceRange `json:"range"`
	Trades int            `json:"trades"`
	Loss   float64        `json:"loss"`
}

// Rollover 跨日事件。
type Rollover struct {
	From string
	To   string
}

type Scheduler struct {
	cfg Config
	day DayState
}

func NewScheduler(cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{cfg: cfg}
}

func (s *Scheduler) Config() Config { return s.cfg }

// DayKey ts（毫秒）在配置时区下的日期。
func (s *Scheduler) DayKey(ts int64) string {
	return time.UnixMilli(ts).In(s.cfg.Location).Format(dayLayout)
}

// Observe 推进到 ts 所在交易日；跨日时重置计数与参考区间并返回 Rollover。
func (s *Scheduler) Observe(ts int64) (Rollover, bool) {
	key := s.DayKey(ts)
	if key == s.day.Key {
		return Rollover{}, false
	}
	ev := Rollover{From: s.day.Key, To: key}
	s.day = DayState{Key: key}
	return ev, true
}

// MarkRange 在 candles 中找当日参考 K 线并标记区间，仅在标记成功的那次返回 true。
func (s *Scheduler) MarkRange(candles []market.Candle) bool {
	if !s.cfg.Windowed || s.day.Key == "" || s.day.Range.Marked {
		return false
	}
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		t := c.Time(s.cfg.Location)
		if t.Format(dayLayout) != s.day.Key {
			continue
		}
		if ClockOf(t) != s.cfg.RangeStart {
			continue
		}
		s.day.Range = ReferenceRange{High: c.High, Low: c.Low, Date: s.day.Key, Marked: true}
		return true
	}
	return false
}

func (s *Scheduler) Range() ReferenceRange { return s.day.Range }

// InWindow ts 是否落在 [WindowStart, EntryCutoff]，未开启窗口时恒为 true。
func (s *Scheduler) InWindow(ts int64) bool {
	if !s.cfg.Windowed {
		return true
	}
	clock := ClockOf(time.UnixMilli(ts).In(s.cfg.Location))
	return clock >= s.cfg.WindowStart && clock <= s.cfg.EntryCutoff
}

// InMarketHours 是否处于开盘时段；open == close 视为全天开放。
func (s *Scheduler) InMarketHours(t time.Time) bool {
	if s.cfg.MarketOpen == s.cfg.MarketClose {
		return true
	}
	clock := ClockOf(t.In(s.cfg.Location))
	return clock >= s.cfg.MarketOpen && clock <= s.cfg.MarketClose
}

// CanEnter ts 时刻能否新建订单，不能时返回原因。
func (s *Scheduler) CanEnter(ts int64) (bool, string) {
	if !s.InWindow(ts) {
		return false, BlockOutsideWindow
	}
	if s.cfg.MaxDailyTrades > 0 && s.day.Trades >= s.cfg.MaxDailyTrades {
		return false, BlockMaxTrades
	}
	if s.cfg.MaxDailyLoss > 0 && s.day.Loss >= s.cfg.MaxDailyLoss {
		return false, BlockMaxLoss
	}
	return true, ""
}

// RecordFill 成交计入当日次数。
func (s *Scheduler) RecordFill() { s.day.Trades++ }

// RecordResult 亏损计入当日亏损额。
func (s *Scheduler) RecordResult(netPnL float64) {
	if netPnL < 0 {
		s.day.Loss += -netPnL
	}
}

// UpdateLimits 热更新日内限额，不影响当日状态。
func (s *Scheduler) UpdateLimits(maxTrades int, maxLoss float64) {
	s.cfg.MaxDailyTrades = maxTrades
	s.cfg.MaxDailyLoss = maxLoss
}

func (s *Scheduler) Day() DayState { return s.day }

func (s *Scheduler) Restore(day DayState) { s.day = day }
