package market

import "context"

// SourceStats 汇总数据源的请求情况，供 live 状态展示。
type SourceStats struct {
	Requests    int    `json:"requests"`
	Failures    int    `json:"failures"`
	LastError   string `json:"last_error,omitempty"`
	LastFetchAt int64  `json:"last_fetch_at"`
}

// Source 拉取最近的已收盘 K 线（live 模式轮询使用）。
type Source interface {
	Name() string
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Stats() SourceStats
}
