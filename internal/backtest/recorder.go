package backtest

import (
	"encoding/json"
	"fmt"
	"strings"

	"scalper/internal/engine"
	"scalper/internal/session"
	"scalper/internal/strategy"
)

// recorder 收集一次回放中的迁移事件，回放结束后批量写入 ResultStore。
type recorder struct {
	engine.NopObserver

	runID   string
	clock   func() int64
	events  []Event
	trades  []TradeRecord
	snaps   []Snapshot
	skipped map[string]int
	peak    float64
}

func newRecorder(runID string, initial float64, startTS int64, clock func() int64) *recorder {
	return &recorder{
		runID:   runID,
		clock:   clock,
		skipped: make(map[string]int),
		peak:    initial,
		snaps:   []Snapshot{{RunID: runID, TS: startTS, Balance: initial}},
	}
}

func (r *recorder) add(kind, reason string, payload any) {
	ev := Event{RunID: r.runID, TS: r.clock(), Kind: kind, Reason: reason}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = string(raw)
		}
	}
	r.events = append(r.events, ev)
}

func (r *recorder) OnRangeMarked(rng session.ReferenceRange) {
	r.add(EventRangeMarked, rng.Date, rng)
}

func (r *recorder) OnOrderPlaced(o engine.Order) {
	r.add(EventOrderPlaced, o.Kind, o)
}

func (r *recorder) OnOrderCancelled(o engine.Order, reason string) {
	r.add(EventCancelled, reason, o)
}

func (r *recorder) OnFill(p engine.Position) {
	r.add(EventFilled, p.Kind, p)
}

func (r *recorder) OnSkip(s strategy.Setup, reason string) {
	r.skipped[skipBucket(reason)]++
	r.add(EventSkipped, reason, s)
}

func (r *recorder) OnClose(t engine.ClosedTrade) {
	r.trades = append(r.trades, tradeRecord(r.runID, t))
	if t.BalanceAfter > r.peak {
		r.peak = t.BalanceAfter
	}
	dd := 0.0
	if r.peak > 0 {
		dd = (r.peak - t.BalanceAfter) / r.peak * 100
	}
	r.snaps = append(r.snaps, Snapshot{RunID: r.runID, TS: t.ExitTime, Balance: t.BalanceAfter, Drawdown: dd})
}

// skipBucket 把带参数的跳过原因归并为统计用的类别。
func skipBucket(reason string) string {
	var stars, need int
	if _, err := fmt.Sscanf(reason, "Low quality (%d stars, need %d+)", &stars, &need); err == nil {
		return fmt.Sprintf("low quality (%d stars)", stars)
	}
	if strings.HasPrefix(reason, "Trend mismatch") {
		return "trend mismatch"
	}
	return reason
}

func tradeRecord(runID string, t engine.ClosedTrade) TradeRecord {
	return TradeRecord{
		ID:           t.ID,
		RunID:        runID,
		Kind:         t.Kind,
		Direction:    string(t.Direction),
		EntryTime:    t.EntryTime,
		ExitTime:     t.ExitTime,
		Entry:        t.Entry,
		Exit:         t.Exit,
		StopLoss:     t.StopLoss,
		TakeProfit:   t.TakeProfit,
		Size:         t.Size,
		GrossPnL:     t.GrossPnL,
		Fee:          t.Fee,
		PnL:          t.PnL,
		PnLPct:       t.PnLPct,
		Reason:       t.Reason,
		BalanceAfter: t.BalanceAfter,
		Quality:      t.Quality,
	}
}
