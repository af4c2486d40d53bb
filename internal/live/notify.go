package live

import (
	"fmt"
	"strings"
	"time"

	"scalper/internal/engine"
	"scalper/internal/gateway/notifier"
	"scalper/internal/logger"
)

// notifyObserver 在成交与平仓时推送结构化消息。
type notifyObserver struct {
	engine.NopObserver
	n      notifier.TextNotifier
	symbol string
	now    func() time.Time
}

func (o notifyObserver) OnFill(p engine.Position) {
	msg := notifier.StructuredMessage{
		Icon:  "🟢",
		Title: fmt.Sprintf("Entry %s %s", o.symbol, p.Direction),
	}
	msg.Add("setup", "%s", p.Kind).
		Add("entry", "%.4f", p.Entry).
		Add("size", "%.6f", p.Size).
		Add("stop", "%.4f", p.StopLoss).
		Add("target", "%.4f", p.TakeProfit).
		Add("quality", "%s", stars(p.Quality))
	o.push(msg)
}

func (o notifyObserver) OnClose(t engine.ClosedTrade) {
	icon := "❌"
	if t.Win() {
		icon = "✅"
	}
	msg := notifier.StructuredMessage{
		Icon:   icon,
		Title:  fmt.Sprintf("%s %s %s", t.Reason, o.symbol, t.Direction),
		Footer: fmt.Sprintf("balance $%.2f", t.BalanceAfter),
	}
	msg.Add("entry", "%.4f", t.Entry).
		Add("exit", "%.4f", t.Exit).
		Add("pnl", "%.2f (%.2f%%)", t.PnL, t.PnLPct).
		Add("fee", "%.2f", t.Fee)
	o.push(msg)
}

func (o notifyObserver) push(msg notifier.StructuredMessage) {
	if o.n == nil {
		return
	}
	msg.Timestamp = o.now()
	if err := o.n.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("[live] 通知发送失败: %v", err)
	}
}

func stars(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("★", n)
}
