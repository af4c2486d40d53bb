// Package engine 维护唯一的挂单/持仓槽位，逐根 K 线推进：
// setup → 挂单 → 持仓 → 平仓记账。
package engine

import (
	"scalper/internal/session"
	"scalper/internal/strategy"
)

// 平仓/撤单原因，与交易日志保持一致。
const (
	ReasonStopLoss      = "Stop Loss"
	ReasonTakeProfit    = "Take Profit"
	ReasonReturnToEntry = "Return to Entry"
	ReasonBacktestEnd   = "Backtest End"

	CancelDayRollover = "day rollover"
	CancelReplayEnd   = "replay end"
)

// Order 等待成交的入场指令。
type Order struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	Direction  strategy.Direction `json:"direction"`
	Entry      float64            `json:"entry"`
	StopLoss   float64            `json:"stop_loss"`
	TakeProfit float64            `json:"take_profit"`
	Size       float64            `json:"size"`
	CreatedAt  int64              `json:"created_at"`
	Quality    int                `json:"quality,omitempty"`
}

type Position struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	Direction  strategy.Direction `json:"direction"`
	Entry      float64            `json:"entry"`
	StopLoss   float64            `json:"stop_loss"`
	TakeProfit float64            `json:"take_profit"`
	Size       float64            `json:"size"`
	EntryTime  int64              `json:"entry_time"`
	Quality    int                `json:"quality,omitempty"`
}

func (p Position) Notional() float64 { return p.Size * p.Entry }

// ClosedTrade 已平仓交易记录，写入后不再修改。
type ClosedTrade struct {
	ID           string             `json:"id"`
	Kind         string             `json:"kind"`
	Direction    strategy.Direction `json:"direction"`
	EntryTime    int64              `json:"entry_time"`
	ExitTime     int64              `json:"exit_time"`
	Entry        float64            `json:"entry"`
	Exit         float64            `json:"exit"`
	StopLoss     float64            `json:"stop_loss"`
	TakeProfit   float64            `json:"take_profit"`
	Size         float64            `json:"size"`
	GrossPnL     float64            `json:"gross_pnl"`
	Fee          float64            `json:"fee"`
	PnL          float64            `json:"pnl"`
	PnLPct       float64            `json:"pnl_pct"`
	Reason       string             `json:"reason"`
	BalanceAfter float64            `json:"balance_after"`
	Quality      int                `json:"quality,omitempty"`
}

func (t ClosedTrade) Win() bool { return t.PnL > 0 }

// State 引擎完整可序列化状态；Pending 与 Position 不会同时存在。
type State struct {
	Account     Account          `json:"account"`
	Day         session.DayState `json:"day"`
	Pending     *Order           `json:"pending,omitempty"`
	Position    *Position        `json:"position,omitempty"`
	LastBarTime int64            `json:"last_bar_time"`
}

// Slot 槽位占用情况。
func (s State) Slot() string {
	switch {
	case s.Position != nil:
		return "position"
	case s.Pending != nil:
		return "pending"
	default:
		return "idle"
	}
}
