package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"scalper/internal/gateway/rest"
	"scalper/internal/market"

	"github.com/tidwall/gjson"
)

const (
	binanceSpotBase   = "https://api.binance.com"
	binanceKlinesPath = "/api/v3/klines"
	binanceMaxLimit   = 1000
	maxErrorBody      = 4 << 10
)

// BinanceSource 读取 Binance 现货 /api/v3/klines，供历史缓存补齐使用。
type BinanceSource struct {
	base   string
	client *http.Client
}

// NewBinanceSource client 为 nil 时使用默认超时的 client。
func NewBinanceSource(base string, client *http.Client) *BinanceSource {
	if client == nil {
		client = &http.Client{Timeout: rest.DefaultTimeout}
	}
	return &BinanceSource{base: rest.BaseURL(base, binanceSpotBase), client: client}
}

func (b *BinanceSource) Name() string { return "binance" }

func (b *BinanceSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, errors.New("symbol/interval 不能为空")
	}
	limit := req.Limit
	if limit <= 0 || limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}
	q := url.Values{
		"symbol":   {req.Symbol},
		"interval": {req.Interval},
		"limit":    {strconv.Itoa(limit)},
	}
	if req.Start > 0 {
		q.Set("startTime", strconv.FormatInt(req.Start, 10))
	}
	if req.End > 0 {
		q.Set("endTime", strconv.FormatInt(req.End, 10))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+binanceKlinesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("binance 返回状态码 %d: %s", resp.StatusCode, gjson.GetBytes(body, "msg").String())
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseKlines(body)
}

// parseKlines 解析 [openTime, open, high, low, close, volume, closeTime, quoteVol, trades, ...] 数组。
func parseKlines(body []byte) ([]market.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("binance 返回非法 JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("binance 返回格式异常: %.200s", root.Raw)
	}
	var out []market.Candle
	root.ForEach(func(_, row gjson.Result) bool {
		if !row.Get("6").Exists() {
			return true
		}
		out = append(out, market.Candle{
			OpenTime:  row.Get("0").Int(),
			Open:      row.Get("1").Float(),
			High:      row.Get("2").Float(),
			Low:       row.Get("3").Float(),
			Close:     row.Get("4").Float(),
			Volume:    row.Get("5").Float(),
			CloseTime: row.Get("6").Int(),
			Trades:    row.Get("8").Int(),
		})
		return true
	})
	return out, nil
}
