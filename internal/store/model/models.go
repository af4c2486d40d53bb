package model

import "gorm.io/datatypes"

// LiveStateModel 保存某个 live 槽位（symbol+strategy）的引擎快照。
type LiveStateModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Key           string         `gorm:"column:state_key;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol"`
	Strategy      string         `gorm:"column:strategy"`
	Slot          string         `gorm:"column:slot"`
	Balance       float64        `gorm:"column:balance"`
	StateJSON     datatypes.JSON `gorm:"column:state_json;type:TEXT"`
	LastBarTime   int64          `gorm:"column:last_bar_time"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (LiveStateModel) TableName() string { return "live_state" }

// LiveTradeModel maps to 'live_trades' table.
type LiveTradeModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	TradeID      string         `gorm:"column:trade_id;uniqueIndex"`
	StateKey     string         `gorm:"column:state_key;index"`
	Kind         string         `gorm:"column:kind"`
	Direction    string         `gorm:"column:direction"`
	EntryTime    int64          `gorm:"column:entry_time"`
	ExitTime     int64          `gorm:"column:exit_time;index"`
	Entry        float64        `gorm:"column:entry"`
	Exit         float64        `gorm:"column:exit"`
	PnL          float64        `gorm:"column:pnl"`
	Reason       string         `gorm:"column:reason"`
	BalanceAfter float64        `gorm:"column:balance_after"`
	Details      datatypes.JSON `gorm:"column:details;type:TEXT"`
}

func (LiveTradeModel) TableName() string { return "live_trades" }

// LiveEventModel 记录 live 运行中的状态迁移（挂单、撤单、跳过等）。
type LiveEventModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	StateKey      string         `gorm:"column:state_key;index"`
	Kind          string         `gorm:"column:kind"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (LiveEventModel) TableName() string { return "live_events" }

// BacktestRunModel 对应一次回放任务；配置与统计以 JSON 文本保存。
type BacktestRunModel struct {
	ID             string         `gorm:"column:id;primaryKey;size:64"`
	Symbol         string         `gorm:"column:symbol;index"`
	Strategy       string         `gorm:"column:strategy"`
	Status         string         `gorm:"column:status"`
	StartTS        int64          `gorm:"column:start_ts"`
	EndTS          int64          `gorm:"column:end_ts"`
	InitialBalance float64        `gorm:"column:initial_balance"`
	FinalBalance   float64        `gorm:"column:final_balance"`
	TotalPnL       float64        `gorm:"column:total_pnl"`
	ROI            float64        `gorm:"column:roi"`
	WinRate        float64        `gorm:"column:win_rate"`
	Trades         int            `gorm:"column:trades"`
	ConfigJSON     datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	StatsJSON      datatypes.JSON `gorm:"column:stats_json;type:TEXT"`
	Message        string         `gorm:"column:message"`
	CreatedAtUnix  int64          `gorm:"column:created_at;index"`
	UpdatedAtUnix  int64          `gorm:"column:updated_at"`
	CompletedAt    *int64         `gorm:"column:completed_at"`
}

func (BacktestRunModel) TableName() string { return "backtest_runs" }

type BacktestTradeModel struct {
	RunID        string  `gorm:"column:run_id;primaryKey;size:64"`
	TradeID      string  `gorm:"column:id;primaryKey;size:64"`
	Seq          int     `gorm:"column:seq;index"`
	Kind         string  `gorm:"column:kind"`
	Direction    string  `gorm:"column:direction"`
	EntryTime    int64   `gorm:"column:entry_time"`
	ExitTime     int64   `gorm:"column:exit_time"`
	Entry        float64 `gorm:"column:entry"`
	Exit         float64 `gorm:"column:exit"`
	StopLoss     float64 `gorm:"column:stop_loss"`
	TakeProfit   float64 `gorm:"column:take_profit"`
	Size         float64 `gorm:"column:size"`
	GrossPnL     float64 `gorm:"column:gross_pnl"`
	Fee          float64 `gorm:"column:fee"`
	PnL          float64 `gorm:"column:pnl"`
	PnLPct       float64 `gorm:"column:pnl_pct"`
	Reason       string  `gorm:"column:reason"`
	BalanceAfter float64 `gorm:"column:balance_after"`
	Quality      int     `gorm:"column:quality"`
}

func (BacktestTradeModel) TableName() string { return "backtest_trades" }

type BacktestSnapshotModel struct {
	ID       int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID    string  `gorm:"column:run_id;index:idx_bt_snap_run"`
	TS       int64   `gorm:"column:ts;index:idx_bt_snap_run"`
	Balance  float64 `gorm:"column:balance"`
	Drawdown float64 `gorm:"column:drawdown"`
}

func (BacktestSnapshotModel) TableName() string { return "backtest_snapshots" }

type BacktestEventModel struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID   string `gorm:"column:run_id;index:idx_bt_event_run"`
	TS      int64  `gorm:"column:ts;index:idx_bt_event_run"`
	Kind    string `gorm:"column:kind;index"`
	Reason  string `gorm:"column:reason"`
	Payload string `gorm:"column:payload;type:TEXT"`
}

func (BacktestEventModel) TableName() string { return "backtest_events" }
