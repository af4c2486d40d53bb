package live

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"scalper/internal/engine"
)

// TradeLog 是 live.trade_log 文件的内容，每次平仓后整体重写。
type TradeLog struct {
	InitialBalance float64              `json:"initial_balance"`
	CurrentBalance float64              `json:"current_balance"`
	TotalPnL       float64              `json:"total_pnl"`
	ROI            float64              `json:"roi"`
	UpdatedAt      string               `json:"updated_at"`
	Trades         []engine.ClosedTrade `json:"trades"`
}

func NewTradeLog(led *engine.Ledger, now time.Time) TradeLog {
	acc := led.Account()
	trades := led.Trades()
	if trades == nil {
		trades = []engine.ClosedTrade{}
	}
	return TradeLog{
		InitialBalance: acc.Initial,
		CurrentBalance: acc.Balance,
		TotalPnL:       led.TotalPnL(),
		ROI:            led.ROI(),
		UpdatedAt:      now.UTC().Format(time.RFC3339),
		Trades:         trades,
	}
}

// WriteFile 先写临时文件再 rename，避免读到半截 JSON。
func (l TradeLog) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	raw, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
