package engine

import (
	"scalper/internal/logger"
	"scalper/internal/session"
	"scalper/internal/strategy"
)

// JournalObserver 把每次状态变化写入 journal 日志。
type JournalObserver struct {
	Prefix string
}

func (j JournalObserver) write(kind string, fields map[string]any) {
	if j.Prefix != "" {
		fields["src"] = j.Prefix
	}
	logger.Journal(kind, fields)
}

func (j JournalObserver) OnRangeMarked(r session.ReferenceRange) {
	j.write("range", map[string]any{"date": r.Date, "high": r.High, "low": r.Low})
}

func (j JournalObserver) OnOrderPlaced(o Order) {
	j.write("order", map[string]any{
		"id": o.ID, "kind": o.Kind, "dir": o.Direction, "entry": o.Entry,
		"sl": o.StopLoss, "tp": o.TakeProfit, "size": o.Size, "quality": o.Quality,
	})
}

func (j JournalObserver) OnOrderCancelled(o Order, reason string) {
	j.write("cancel", map[string]any{"id": o.ID, "reason": reason})
}

func (j JournalObserver) OnFill(p Position) {
	j.write("fill", map[string]any{"id": p.ID, "dir": p.Direction, "entry": p.Entry, "at": p.EntryTime})
}

func (j JournalObserver) OnClose(t ClosedTrade) {
	j.write("close", map[string]any{
		"id": t.ID, "reason": t.Reason, "exit": t.Exit, "pnl": t.PnL, "fee": t.Fee, "balance": t.BalanceAfter,
	})
}

func (j JournalObserver) OnSkip(s strategy.Setup, reason string) {
	j.write("skip", map[string]any{"kind": s.Kind, "dir": s.Direction, "reason": reason})
}
