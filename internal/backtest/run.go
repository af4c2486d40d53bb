package backtest

import (
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// Event kinds stored in backtest_events.
const (
	EventRangeMarked = "range_marked"
	EventOrderPlaced = "order_placed"
	EventCancelled   = "order_cancelled"
	EventFilled      = "filled"
	EventSkipped     = "skipped"
)

// RunConfig 记录本次回放的参数快照，便于重放。
type RunConfig struct {
	Symbol           string  `json:"symbol"`
	Strategy         string  `json:"strategy"`
	StartTS          int64   `json:"start_ts"`
	EndTS            int64   `json:"end_ts"`
	TradingTimeframe string  `json:"trading_timeframe"`
	RangeTimeframe   string  `json:"range_timeframe,omitempty"`
	ConfirmTimeframe string  `json:"confirm_timeframe,omitempty"`
	InitialBalance   float64 `json:"initial_balance"`
	RiskPerTrade     float64 `json:"risk_per_trade"`
	RewardRatio      float64 `json:"reward_ratio"`
	FeeRate          float64 `json:"fee_rate"`
	QualityGate      bool    `json:"quality_gate"`
	SessionWindowed  bool    `json:"session_windowed"`
	Timezone         string  `json:"timezone,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

// RunStats 汇总收益与分布指标。
type RunStats struct {
	InitialBalance float64        `json:"initial_balance"`
	FinalBalance   float64        `json:"final_balance"`
	TotalPnL       float64        `json:"total_pnl"`
	ROI            float64        `json:"roi"`
	Trades         int            `json:"trades"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	WinRate        float64        `json:"win_rate"`
	AvgWin         float64        `json:"avg_win"`
	AvgLoss        float64        `json:"avg_loss"`
	ProfitFactor   float64        `json:"profit_factor"`
	TotalFees      float64        `json:"total_fees"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
	ExitReasons    map[string]int `json:"exit_reasons,omitempty"`
	Quality        map[int]int    `json:"quality,omitempty"`
	Skipped        map[string]int `json:"skipped,omitempty"`
	Bars           int            `json:"bars"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// Run 表示一次回放任务。
type Run struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	Status      string    `json:"status"`
	StartTS     int64     `json:"start_ts"`
	EndTS       int64     `json:"end_ts"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// TradeRecord 是一笔已平仓交易在结果库中的形态。
type TradeRecord struct {
	ID           string  `json:"id"`
	RunID        string  `json:"run_id"`
	Kind         string  `json:"kind"`
	Direction    string  `json:"direction"`
	EntryTime    int64   `json:"entry_time"`
	ExitTime     int64   `json:"exit_time"`
	Entry        float64 `json:"entry"`
	Exit         float64 `json:"exit"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	Size         float64 `json:"size"`
	GrossPnL     float64 `json:"gross_pnl"`
	Fee          float64 `json:"fee"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
	Reason       string  `json:"reason"`
	BalanceAfter float64 `json:"balance_after"`
	Quality      int     `json:"quality"`
}

// Snapshot 保存资金曲线（每笔平仓一个点）。
type Snapshot struct {
	ID       int64   `json:"id"`
	RunID    string  `json:"run_id"`
	TS       int64   `json:"ts"`
	Balance  float64 `json:"balance"`
	Drawdown float64 `json:"drawdown"`
}

// Event 记录一次状态机迁移或被跳过的信号。
type Event struct {
	ID      int64  `json:"id"`
	RunID   string `json:"run_id"`
	TS      int64  `json:"ts"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// RunRequest 覆盖默认配置中的回放参数；零值沿用配置。
type RunRequest struct {
	Symbol         string  `json:"symbol"`
	StartTS        int64   `json:"start_ts"`
	EndTS          int64   `json:"end_ts"`
	Days           int     `json:"days"`
	InitialBalance float64 `json:"initial_balance"`
	Notes          string  `json:"notes"`
}
