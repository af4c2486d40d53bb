// Package gate 拉取 gate.io USDT 永续合约 K 线。
package gate

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

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"
)

const (
	defaultGateREST = "https://api.gateio.ws/api/v4"
	settle          = "usdt"
	maxCandles      = 2000
)

type Config struct {
	RESTBaseURL string
	Timeout     time.Duration
	ProxyURL    string
}

type Source struct {
	api   *gateapi.APIClient
	now   func() time.Time
	stats rest.Stats
}

func New(cfg Config) (*Source, error) {
	httpClient, err := rest.NewHTTPClient(cfg.Timeout, cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	conf := gateapi.NewConfiguration()
	conf.BasePath = rest.BaseURL(cfg.RESTBaseURL, defaultGateREST)
	conf.HTTPClient = httpClient
	return &Source{api: gateapi.NewAPIClient(conf), now: time.Now}, nil
}

func (s *Source) Name() string { return "gate" }

func (s *Source) Stats() market.SourceStats { return s.stats.Snapshot() }

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if !symbolpkg.IsValid(symbol) {
		return nil, fmt.Errorf("symbol is required")
	}
	contract := symbolpkg.ToGate(symbol)
	tf, err := market.ParseTimeframe(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	} else if limit > maxCandles {
		limit = maxCandles
	}
	kls, _, err := s.api.FuturesApi.ListFuturesCandlesticks(ctx, settle, contract, &gateapi.ListFuturesCandlesticksOpts{
		Limit:    optional.NewInt32(int32(limit)),
		Interval: optional.NewString(tf.SourceInterval),
	})
	s.stats.Observe(err, s.now())
	if err != nil {
		logger.Warnf("[gate] candlesticks %s %s limit=%d: %v", contract, tf.Key, limit, err)
		return nil, err
	}
	// gate 的 t 为秒级开盘时间，且不返回收盘时间。
	step := tf.Millis()
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		open := int64(kl.T) * 1000
		out = append(out, market.Candle{
			OpenTime:  open,
			CloseTime: open + step - 1,
			Open:      num(kl.O),
			High:      num(kl.H),
			Low:       num(kl.L),
			Close:     num(kl.C),
			Volume:    num(kl.Sum),
		})
	}
	return scheduler.ClosedOnly(out, tf.Duration, s.now(), scheduler.DefaultKlineGrace), nil
}

func num(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
