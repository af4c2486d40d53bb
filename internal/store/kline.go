// Package store 持有 live 模式的内存 K 线缓冲；持久化部分见 gormstore。
package store

import (
	"errors"
	"sync"

	"scalper/internal/market"
)

// CandleBuffer 按 symbol@timeframe 保存最近 N 根 K 线，供 live 每次轮询拼接历史。
type CandleBuffer struct {
	mu    sync.RWMutex
	limit int
	data  map[string]market.Candles
}

const defaultBufferLimit = 500

func NewCandleBuffer(limit int) *CandleBuffer {
	if limit <= 0 {
		limit = defaultBufferLimit
	}
	return &CandleBuffer{limit: limit, data: make(map[string]market.Candles)}
}

func key(symbol, timeframe string) string { return symbol + "@" + timeframe }

// Merge 合并新拉取的 K 线：同一开盘时间覆盖，早于末尾的旧数据忽略，超出上限时裁掉最旧的。
// 返回追加的新 K 线数量（覆盖不计）。
func (b *CandleBuffer) Merge(symbol, timeframe string, ks []market.Candle) (int, error) {
	if symbol == "" || timeframe == "" {
		return 0, errors.New("symbol/timeframe 不能为空")
	}
	if len(ks) == 0 {
		return 0, nil
	}
	k := key(symbol, timeframe)
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.data[k]
	added := 0
	for _, c := range ks {
		n := len(cur)
		switch {
		case n == 0 || c.OpenTime > cur[n-1].OpenTime:
			cur = append(cur, c)
			added++
		case c.OpenTime == cur[n-1].OpenTime:
			cur[n-1] = c
		}
	}
	if len(cur) > b.limit {
		cur = append(market.Candles(nil), cur[len(cur)-b.limit:]...)
	}
	b.data[k] = cur
	return added, nil
}

// Get 返回缓冲副本。
func (b *CandleBuffer) Get(symbol, timeframe string) market.Candles {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cur := b.data[key(symbol, timeframe)]
	out := make(market.Candles, len(cur))
	copy(out, cur)
	return out
}

// Last 返回最新一根 K 线。
func (b *CandleBuffer) Last(symbol, timeframe string) (market.Candle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cur := b.data[key(symbol, timeframe)]
	if len(cur) == 0 {
		return market.Candle{}, false
	}
	return cur[len(cur)-1], true
}
