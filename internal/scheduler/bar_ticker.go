package scheduler

import (
	"context"
	"time"

	"scalper/internal/logger"
)

// BarTicker 在每根 K 线收盘 + Grace 之后触发任务；Poll 小于 Bar 时，
// 两次收盘之间再按 Poll 的整数倍补充触发（用于及时发现迟到的 K 线）。
type BarTicker struct {
	Name  string
	Bar   time.Duration
	Poll  time.Duration
	Grace time.Duration
	// RunImmediately 为 true 时启动后先执行一次。
	RunImmediately bool

	now func() time.Time
}

func NewBarTicker(bar, poll, grace time.Duration) *BarTicker {
	return &BarTicker{Bar: bar, Poll: poll, Grace: grace, now: time.Now}
}

// SetClock 替换时间源，测试使用。
func (t *BarTicker) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Next 返回严格晚于 now 的下一次触发时间。
func (t *BarTicker) Next(now time.Time) time.Time {
	now = now.UTC()
	grace := t.Grace
	if grace < 0 {
		grace = 0
	}
	next := now.Add(-grace).Truncate(t.Bar).Add(t.Bar).Add(grace)
	if t.Poll > 0 && t.Poll < t.Bar {
		if p := now.Truncate(t.Poll).Add(t.Poll); p.Before(next) {
			next = p
		}
	}
	return next
}

// Run 阻塞执行直到 ctx 结束。
func (t *BarTicker) Run(ctx context.Context, task func()) {
	if t == nil || task == nil {
		return
	}
	if t.Bar <= 0 {
		logger.Warnf("[%s] invalid bar interval %s, ticker not started", t.label(), t.Bar)
		return
	}
	if t.now == nil {
		t.now = time.Now
	}
	logger.Infof("[%s] ticker started bar=%s poll=%s grace=%s", t.label(), t.Bar, t.Poll, t.Grace)
	if t.RunImmediately {
		task()
	}
	for {
		now := t.now()
		at := t.Next(now)
		logger.Debugf("[%s] next run %s (in %s)", t.label(), at.Format(time.RFC3339), at.Sub(now).Truncate(time.Second))
		if !sleepUntil(ctx, at.Sub(now)) {
			return
		}
		task()
	}
}

func (t *BarTicker) label() string {
	if t.Name == "" {
		return "ticker"
	}
	return t.Name
}

func sleepUntil(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
