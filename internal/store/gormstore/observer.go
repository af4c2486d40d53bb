package gormstore

import (
	"context"
	"time"

	"scalper/internal/engine"
	"scalper/internal/logger"
	"scalper/internal/session"
	"scalper/internal/strategy"
)

// Observer 把引擎的状态迁移写入 live_trades/live_events。写库失败只记日志。
type Observer struct {
	Store   *GormStore
	Key     string
	Timeout time.Duration
}

func (o Observer) ctx() (context.Context, context.CancelFunc) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (o Observer) event(kind string, payload any) {
	ctx, cancel := o.ctx()
	defer cancel()
	if err := o.Store.AppendEvent(ctx, o.Key, kind, payload); err != nil {
		logger.Warnf("[live] 写入事件 %s 失败: %v", kind, err)
	}
}

func (o Observer) OnRangeMarked(r session.ReferenceRange) { o.event("range", r) }

func (o Observer) OnOrderPlaced(ord engine.Order) { o.event("order", ord) }

func (o Observer) OnOrderCancelled(ord engine.Order, reason string) {
	o.event("cancel", map[string]any{"order": ord, "reason": reason})
}

func (o Observer) OnFill(p engine.Position) { o.event("fill", p) }

func (o Observer) OnClose(t engine.ClosedTrade) {
	ctx, cancel := o.ctx()
	defer cancel()
	if err := o.Store.AppendTrade(ctx, o.Key, t); err != nil {
		logger.Warnf("[live] 写入成交 %s 失败: %v", t.ID, err)
	}
}

func (o Observer) OnSkip(s strategy.Setup, reason string) {
	o.event("skip", map[string]any{"kind": s.Kind, "direction": s.Direction, "reason": reason})
}

var _ engine.Observer = Observer{}
