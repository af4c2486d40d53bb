package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"scalper/internal/gateway/rest"
	"scalper/internal/logger"
	"scalper/internal/market"
	symbolpkg "scalper/internal/pkg/symbol"
	"scalper/internal/scheduler"

	gobinance "github.com/adshao/go-binance/v2"
)

const (
	defaultSpotREST = "https://api.binance.com"
	maxKlines       = 1000
)

type Config struct {
	RESTBaseURL string
	Timeout     time.Duration
	// ProxyURL 为空表示直连。
	ProxyURL string
}

// Source 通过 go-binance 现货 klines 接口实现 market.Source。
type Source struct {
	client *gobinance.Client
	now    func() time.Time
	stats  rest.Stats
}

func New(cfg Config) (*Source, error) {
	httpClient, err := rest.NewHTTPClient(cfg.Timeout, cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("binance: %w", err)
	}
	client := gobinance.NewClient("", "")
	client.BaseURL = rest.BaseURL(cfg.RESTBaseURL, defaultSpotREST)
	client.HTTPClient = httpClient
	return &Source{client: client, now: time.Now}, nil
}

func (s *Source) Name() string { return "binance" }

func (s *Source) Stats() market.SourceStats { return s.stats.Snapshot() }

// FetchHistory 返回最近 limit 根已收盘 K 线。
func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	pair := symbolpkg.Normalize(symbol)
	if pair == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	tf, err := market.ParseTimeframe(interval)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, maxKlines)
	kls, err := s.client.NewKlinesService().
		Symbol(pair).
		Interval(tf.SourceInterval).
		Limit(limit).
		Do(ctx)
	s.stats.Observe(err, s.now())
	if err != nil {
		logger.Warnf("[binance] klines %s %s limit=%d: %v", pair, tf.Key, limit, err)
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl != nil {
			out = append(out, toCandle(kl))
		}
	}
	return scheduler.ClosedOnly(out, tf.Duration, s.now(), scheduler.DefaultKlineGrace), nil
}

func toCandle(kl *gobinance.Kline) market.Candle {
	return market.Candle{
		OpenTime:  kl.OpenTime,
		CloseTime: kl.CloseTime,
		Open:      num(kl.Open),
		High:      num(kl.High),
		Low:       num(kl.Low),
		Close:     num(kl.Close),
		Volume:    num(kl.Volume),
		Trades:    kl.TradeNum,
	}
}

func clampLimit(limit, max int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > max:
		return max
	default:
		return limit
	}
}

func num(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
