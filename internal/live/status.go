package live

import (
	"time"

	"scalper/internal/engine"
	"scalper/internal/market"
)

// Status 是 HTTP /live/status 返回的只读副本。
type Status struct {
	Symbol     string         `json:"symbol"`
	Strategy   string         `json:"strategy"`
	Exchange   string         `json:"exchange"`
	Running    bool           `json:"running"`
	MarketOpen bool           `json:"market_open"`
	Breaker    string         `json:"breaker,omitempty"`
	Polls      int64          `json:"polls"`
	LastPollAt time.Time      `json:"last_poll_at"`
	LastCandle *market.Candle `json:"last_candle,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	State      engine.State   `json:"state"`
	TotalPnL   float64        `json:"total_pnl"`
	ROI        float64        `json:"roi"`
	Trades     int            `json:"trades"`
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status
	if st.LastCandle != nil {
		c := *st.LastCandle
		st.LastCandle = &c
	}
	st.State = r.eng.Snapshot()
	led := r.eng.Ledger()
	st.TotalPnL = led.TotalPnL()
	st.ROI = led.ROI()
	st.Trades = len(led.Trades())
	return st
}

// Trades 返回 ledger 中的成交副本（最近 limit 条，<=0 表示全部）。
func (r *Runner) Trades(limit int) []engine.ClosedTrade {
	r.mu.Lock()
	trades := r.eng.Ledger().Trades()
	r.mu.Unlock()
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	return trades
}
