package app

import (
	"context"
	"fmt"

	"scalper/internal/backtest"
	"scalper/internal/config"
	"scalper/internal/gateway"
	"scalper/internal/gateway/notifier"
	"scalper/internal/gateway/rest"
	"scalper/internal/logger"
	"scalper/internal/market"
)

type AppBuilder struct {
	cfg        *config.Config
	configPath string

	candleSourcesFn func(*config.Config) map[string]backtest.CandleSource
	liveSourceFn    func(*config.Config) (market.Source, error)
	notifierFn      func(*config.Config) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

// WithConfigPath 指定配置文件路径，live 模式据此热更新风控参数。
func WithConfigPath(path string) AppBuilderOption {
	return func(b *AppBuilder) { b.configPath = path }
}

func WithCandleSources(fn func(*config.Config) map[string]backtest.CandleSource) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.candleSourcesFn = fn
		}
	}
}

func WithLiveSource(fn func(*config.Config) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.liveSourceFn = fn
		}
	}
}

func WithNotifier(fn func(*config.Config) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifierFn = fn
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:             cfg,
		candleSourcesFn: defaultCandleSources,
		liveSourceFn:    gateway.NewSourceFromConfig,
		notifierFn:      gateway.NewNotifierFromConfig,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// defaultCandleSources 历史数据统一走 Binance 现货 REST，沿用 market.proxy_url。
func defaultCandleSources(cfg *config.Config) map[string]backtest.CandleSource {
	client, err := rest.NewHTTPClient(rest.DefaultTimeout, cfg.Market.ProxyURL)
	if err != nil {
		logger.Warnf("历史行情代理无效，改用直连: %v", err)
		client = nil
	}
	src := backtest.NewBinanceSource("", client)
	return map[string]backtest.CandleSource{
		"binance": src,
		"gate":    src,
	}
}

// Build 创建回测栈；live 依赖在 RunLive 时按需创建。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	tn := b.notifierFn(cfg)
	if tn != nil {
		logger.Infof("✓ Telegram 通知已启用")
	}
	bt, err := newBacktestService(cfg, b.candleSourcesFn(cfg), tn)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 回测存储: candles=%s results=%s", cfg.Backtest.CandlesDir, cfg.Backtest.ResultsDB)

	return &App{
		cfg:      cfg,
		builder:  b,
		backtest: bt,
		notifier: tn,
		Summary:  newStartupSummary(cfg),
	}, nil
}

func (b *AppBuilder) buildLive(ctx context.Context, tn notifier.TextNotifier) (*LiveService, error) {
	src, err := b.liveSourceFn(b.cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	logger.Infof("✓ 行情源: %s", src.Name())
	return newLiveService(ctx, b.cfg, src, tn, b.configPath)
}
