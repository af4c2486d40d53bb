package gateway

import (
	"fmt"
	"strings"

	"scalper/internal/config"
	"scalper/internal/gateway/binance"
	"scalper/internal/gateway/gate"
	"scalper/internal/gateway/notifier"
	"scalper/internal/market"
)

// NewSourceFromConfig 根据 market.exchange 创建 live K 线数据源。
func NewSourceFromConfig(cfg *config.Config) (market.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Market.Exchange))
	switch name {
	case "", "binance":
		return binance.New(binance.Config{RESTBaseURL: cfg.Market.RESTBaseURL, ProxyURL: cfg.Market.ProxyURL})
	case "gate":
		base := cfg.Market.RESTBaseURL
		if strings.Contains(base, "binance") {
			base = ""
		}
		return gate.New(gate.Config{RESTBaseURL: base, ProxyURL: cfg.Market.ProxyURL})
	default:
		return nil, fmt.Errorf("unsupported market source: %s", cfg.Market.Exchange)
	}
}

// NewNotifierFromConfig 返回 Telegram 通知器；未启用时返回 nil。
func NewNotifierFromConfig(cfg *config.Config) notifier.TextNotifier {
	if cfg == nil || !cfg.Notify.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
}
