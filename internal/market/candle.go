package market

import "time"

// Candle 单根已收盘 OHLCV，时间为毫秒时间戳。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Candles 按时间升序。
type Candles []Candle

func (c Candle) Range() float64 { return c.High - c.Low }

func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Time 开盘时间，loc 为 nil 时用 UTC。
func (c Candle) Time(loc *time.Location) time.Time {
	t := time.UnixMilli(c.OpenTime)
	if loc == nil {
		return t.UTC()
	}
	return t.In(loc)
}

func (c Candle) TimeString() string {
	ts := c.CloseTime
	if ts == 0 {
		ts = c.OpenTime
	}
	if ts <= 0 {
		return "-"
	}
	return time.UnixMilli(ts).UTC().Format("01-02 15:04") + "Z"
}
