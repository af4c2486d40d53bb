package engine

import (
	"scalper/internal/logger"
	"scalper/internal/market"
	"scalper/internal/risk"
	"scalper/internal/session"
	"scalper/internal/strategy"

	"github.com/google/uuid"
)

// Bar 单步输入：最新交易周期 K 线及检测器读取的序列。
// Ranges/Confirm 可能含未收盘 K 线，引擎只取本根收盘前已收盘的部分。
type Bar struct {
	Candle  market.Candle
	History market.Candles
	Ranges  market.Candles
	Confirm market.Candles
}

type Config struct {
	Strategy  strategy.Strategy
	Sizer     *risk.Sizer
	Scheduler *session.Scheduler
	Ledger    *Ledger
	FeeRate   float64
	Observers []Observer
	// NewID 覆盖交易 ID 生成（测试用）
	NewID func() string
}

// Engine 挂单/持仓状态机，非并发安全，需由单个 goroutine 喂 K 线。
type Engine struct {
	strat   strategy.Strategy
	sizer   *risk.Sizer
	sched   *session.Scheduler
	ledger  *Ledger
	feeRate float64
	obs     observers
	newID   func() string

	pending  *Order
	position *Position
	lastBar  int64
}

func New(cfg Config) *Engine {
	e := &Engine{
		strat:   cfg.Strategy,
		sizer:   cfg.Sizer,
		sched:   cfg.Scheduler,
		ledger:  cfg.Ledger,
		feeRate: cfg.FeeRate,
		obs:     append(observers(nil), cfg.Observers...),
		newID:   cfg.NewID,
	}
	if e.ledger == nil {
		e.ledger = NewLedger(0)
	}
	if e.sched == nil {
		e.sched = session.NewScheduler(session.Config{})
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	return e
}

func (e *Engine) AddObserver(o Observer) { e.obs = append(e.obs, o) }

func (e *Engine) Ledger() *Ledger { return e.ledger }

func (e *Engine) Scheduler() *session.Scheduler { return e.sched }

func (e *Engine) Strategy() strategy.Strategy { return e.strat }

// Step 处理一根 K 线；不晚于上一根的 K 线直接忽略并返回 false。
func (e *Engine) Step(bar Bar) bool {
	c := bar.Candle
	if e.lastBar != 0 && c.OpenTime <= e.lastBar {
		return false
	}
	e.lastBar = c.OpenTime
	closeTs := c.CloseTime
	if closeTs == 0 {
		closeTs = c.OpenTime
	}

	if ev, rolled := e.sched.Observe(c.OpenTime); rolled {
		e.onRollover(ev)
	}
	if e.sched.MarkRange(bar.Ranges.ClosedBy(closeTs)) {
		rng := e.sched.Range()
		logger.Infof("[engine] 参考区间已标记 %s high=%.2f low=%.2f", rng.Date, rng.High, rng.Low)
		e.obs.rangeMarked(rng)
	}

	if e.pending != nil && e.sched.InWindow(c.OpenTime) && limitFilled(*e.pending, c) {
		e.fill(*e.pending, c.OpenTime)
	}
	if e.position != nil {
		if price, reason, ok := exitFor(*e.position, c, e.strat.ExitRules()); ok {
			e.close(price, reason, c.OpenTime)
		}
	}
	if e.pending == nil && e.position == nil {
		e.tryEnter(bar, closeTs)
	}
	return true
}

func (e *Engine) onRollover(ev session.Rollover) {
	if ev.From != "" {
		logger.Debugf("[engine] 跨日 %s -> %s", ev.From, ev.To)
	}
	if e.pending != nil {
		ord := *e.pending
		e.pending = nil
		logger.Infof("[engine] 挂单 %s %s @ %.2f 已撤销: %s", ord.ID, ord.Direction, ord.Entry, CancelDayRollover)
		e.obs.cancelled(ord, CancelDayRollover)
	}
}

func (e *Engine) tryEnter(bar Bar, closeTs int64) {
	c := bar.Candle
	if ok, _ := e.sched.CanEnter(c.OpenTime); !ok {
		return
	}
	rng := e.sched.Range()
	if e.strat.NeedsRange() && !rng.Marked {
		return
	}
	det := e.strat.Detect(strategy.Input{
		Bar:     c,
		History: bar.History,
		Confirm: bar.Confirm.ClosedBy(closeTs),
		Range:   rng,
	})
	if det.Skipped != "" {
		logger.Debugf("[engine] 跳过信号: %s", det.Skipped)
		e.obs.skipped(det.Setup, det.Skipped)
		return
	}
	if !det.OK {
		return
	}
	e.place(det.Setup, c.OpenTime)
}

// place 计算仓位并占用槽位；槽位已占或仓位为 0 时不下单。
func (e *Engine) place(s strategy.Setup, ts int64) bool {
	if e.pending != nil || e.position != nil {
		return false
	}
	size := e.sizer.Size(s.Entry, s.StopLoss, e.ledger.Balance(), s.Quality)
	if size <= 0 {
		e.obs.skipped(s, "size zero")
		return false
	}
	ord := Order{
		ID:         e.newID(),
		Kind:       s.Kind,
		Direction:  s.Direction,
		Entry:      s.Entry,
		StopLoss:   s.StopLoss,
		TakeProfit: s.TakeProfit,
		Size:       size,
		CreatedAt:  ts,
		Quality:    s.Quality,
	}
	logger.Infof("[engine] 下单 %s %s @ %.2f sl=%.2f tp=%.2f size=%.6f", ord.Kind, ord.Direction, ord.Entry, ord.StopLoss, ord.TakeProfit, ord.Size)
	e.obs.placed(ord)
	if e.strat.EntryMode() == strategy.EntryMarket {
		e.fill(ord, ts)
		return true
	}
	e.pending = &ord
	return true
}

func (e *Engine) fill(ord Order, ts int64) {
	pos := Position{
		ID:         ord.ID,
		Kind:       ord.Kind,
		Direction:  ord.Direction,
		Entry:      ord.Entry,
		StopLoss:   ord.StopLoss,
		TakeProfit: ord.TakeProfit,
		Size:       ord.Size,
		EntryTime:  ts,
		Quality:    ord.Quality,
	}
	e.pending = nil
	e.position = &pos
	e.sched.RecordFill()
	logger.Infof("[engine] 成交 %s @ %.2f", pos.Direction, pos.Entry)
	e.obs.filled(pos)
}

func (e *Engine) close(price float64, reason string, ts int64) ClosedTrade {
	pos := *e.position
	e.position = nil
	gross, fee, net := settle(pos, price, e.feeRate)
	trade := e.ledger.Record(ClosedTrade{
		ID:         pos.ID,
		Kind:       pos.Kind,
		Direction:  pos.Direction,
		EntryTime:  pos.EntryTime,
		ExitTime:   ts,
		Entry:      pos.Entry,
		Exit:       price,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Size:       pos.Size,
		GrossPnL:   gross,
		Fee:        fee,
		PnL:        net,
		Reason:     reason,
		Quality:    pos.Quality,
	})
	e.sched.RecordResult(net)
	logger.Infof("[engine] 平仓 %s: %s pnl=%.2f balance=%.2f", trade.Direction, reason, trade.PnL, trade.BalanceAfter)
	e.obs.closed(trade)
	return trade
}

// Finish 回放结束：撤掉挂单，持仓按最后收盘价强平。
func (e *Engine) Finish(last market.Candle) (ClosedTrade, bool) {
	if e.pending != nil {
		ord := *e.pending
		e.pending = nil
		e.obs.cancelled(ord, CancelReplayEnd)
	}
	if e.position == nil {
		return ClosedTrade{}, false
	}
	return e.close(last.Close, ReasonBacktestEnd, last.OpenTime), true
}

// Snapshot 返回状态深拷贝。
func (e *Engine) Snapshot() State {
	st := State{
		Account:     e.ledger.Account(),
		Day:         e.sched.Day(),
		LastBarTime: e.lastBar,
	}
	if e.pending != nil {
		ord := *e.pending
		st.Pending = &ord
	}
	if e.position != nil {
		pos := *e.position
		st.Position = &pos
	}
	return st
}

// Restore 载入快照；历史成交另经 Ledger 恢复。
func (e *Engine) Restore(st State) {
	e.ledger.Restore(st.Account, e.ledger.Trades())
	e.sched.Restore(st.Day)
	e.lastBar = st.LastBarTime
	e.pending, e.position = nil, nil
	if st.Position != nil {
		pos := *st.Position
		e.position = &pos
	} else if st.Pending != nil {
		ord := *st.Pending
		e.pending = &ord
	}
}
