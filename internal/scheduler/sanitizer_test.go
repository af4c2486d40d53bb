package scheduler

import (
	"testing"
	"time"

	"scalper/internal/market"

	"github.com/stretchr/testify/assert"
)

func TestClosedOnly(t *testing.T) {
	open := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	klines := []market.Candle{
		{OpenTime: open.Add(-5 * time.Minute).UnixMilli()},
		{OpenTime: open.UnixMilli()},
	}
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"in progress", open.Add(2 * time.Minute), 1},
		{"inside grace", open.Add(5*time.Minute + 5*time.Second), 1},
		{"exactly at grace", open.Add(5*time.Minute + DefaultKlineGrace), 2},
		{"closed", open.Add(6 * time.Minute), 2},
		{"both open", open.Add(-time.Minute), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, ClosedOnly(klines, 5*time.Minute, tc.now, DefaultKlineGrace), tc.want)
		})
	}

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, ClosedOnly(nil, time.Minute, open, 0))
	})
}
