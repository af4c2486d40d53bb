package backtest

import (
	"context"
	"time"

	"scalper/internal/market"

	"github.com/stretchr/testify/mock"
)

var (
	baseTime = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	step5m   = (5 * time.Minute).Milliseconds()
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).([]market.Candle)
	return out, args.Error(1)
}

func flatCandles(start int64, n int, price float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		open := start + int64(i)*step5m
		out[i] = market.Candle{
			OpenTime:  open,
			CloseTime: open + step5m - 1,
			Open:      price,
			High:      price + 0.5,
			Low:       price - 0.5,
			Close:     price,
			Volume:    10,
		}
	}
	return out
}

func startingAt(from int64) interface{} {
	return mock.MatchedBy(func(req FetchRequest) bool { return req.Start == from })
}
