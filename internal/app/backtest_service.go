package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scalper/internal/backtest"
	"scalper/internal/config"
	"scalper/internal/gateway/notifier"
	"scalper/internal/logger"
	"scalper/internal/report"
	"scalper/internal/session"
)

// BacktestService 管理回测数据、回放与报告输出。
type BacktestService struct {
	cfg     *config.Config
	store   *backtest.Store
	results *backtest.ResultStore
	svc     *backtest.Service
	sim     *backtest.Simulator
}

func newBacktestService(cfg *config.Config, sources map[string]backtest.CandleSource, tn notifier.TextNotifier) (*BacktestService, error) {
	store, err := backtest.NewStore(cfg.Backtest.CandlesDir)
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线缓存失败: %w", err)
	}
	results, err := backtest.NewResultStore(cfg.Backtest.ResultsDB)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("初始化回测结果库失败: %w", err)
	}
	svc, err := backtest.NewService(backtest.ServiceConfig{
		Store:           store,
		Sources:         sources,
		DefaultExchange: cfg.Market.Exchange,
		RateLimitPerMin: cfg.Backtest.RateLimitPerMin,
		MaxConcurrent:   cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		_ = results.Close()
		_ = store.Close()
		return nil, fmt.Errorf("初始化拉取服务失败: %w", err)
	}
	var bn backtest.Notifier
	if tn != nil {
		bn = tn
	}
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		Config:        cfg,
		CandleStore:   store,
		ResultStore:   results,
		Fetcher:       svc,
		Notifier:      bn,
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		_ = results.Close()
		_ = store.Close()
		return nil, err
	}
	return &BacktestService{cfg: cfg, store: store, results: results, svc: svc, sim: sim}, nil
}

// Start 绑定上下文，HTTP 触发的后台任务随 ctx 取消。
func (b *BacktestService) Start(ctx context.Context) {
	if b == nil {
		return
	}
	if b.svc != nil {
		b.svc.SetContext(ctx)
	}
	if b.sim != nil {
		b.sim.SetContext(ctx)
	}
}

// Run 同步执行一次回放并输出报告。
func (b *BacktestService) Run(ctx context.Context, req backtest.RunRequest) (*backtest.Result, error) {
	if b == nil || b.sim == nil {
		return nil, fmt.Errorf("backtest service not initialized")
	}
	res, err := b.sim.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.InfoBlock(res.Run.Stats.Report(res.Run.Symbol, res.Run.Strategy))
	if _, err := b.WriteReport(ctx, res); err != nil {
		logger.Warnf("[backtest] 生成报告失败: %v", err)
	}
	return res, nil
}

// WriteReport 将回放结果渲染为 HTML（可选 PNG），返回 HTML 路径。
func (b *BacktestService) WriteReport(ctx context.Context, res *backtest.Result) (string, error) {
	if res == nil || len(res.Candles) == 0 {
		return "", fmt.Errorf("没有可用的回放结果")
	}
	dir := strings.TrimSpace(b.cfg.Backtest.ReportDir)
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	in := reportInput(b.cfg, res)
	base := filepath.Join(dir, fmt.Sprintf("%s_%s_%s", res.Run.Symbol, res.Run.Strategy, res.Run.ID))
	htmlPath := base + ".html"
	n, err := report.WriteHTML(htmlPath, in)
	if err != nil {
		return "", err
	}
	logger.Infof("[backtest] 报告已写入 %s (%d bytes)", htmlPath, n)
	if b.cfg.Backtest.SnapshotPNG {
		if err := report.EnsureHeadlessAvailable(ctx); err != nil {
			logger.Warnf("[backtest] 跳过 PNG 截图: %v", err)
			return htmlPath, nil
		}
		if err := report.WritePNG(ctx, base+".png", in); err != nil {
			logger.Warnf("[backtest] PNG 截图失败: %v", err)
		}
	}
	return htmlPath, nil
}

func reportInput(cfg *config.Config, res *backtest.Result) report.Input {
	loc, err := session.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		loc = nil
	}
	equity := make([]report.EquityPoint, 0, len(res.Equity))
	for _, s := range res.Equity {
		equity = append(equity, report.EquityPoint{TS: s.TS, Balance: s.Balance})
	}
	return report.Input{
		Symbol:    res.Run.Symbol,
		Timeframe: res.Run.Config.TradingTimeframe,
		Candles:   res.Candles,
		Trades:    res.Trades,
		Equity:    equity,
		EMAPeriod: cfg.Strategy.Quality.EMAPeriod,
		Location:  loc,
	}
}

// Close 释放回测相关资源。
func (b *BacktestService) Close() {
	if b == nil {
		return
	}
	if b.results != nil {
		_ = b.results.Close()
	}
	if b.store != nil {
		_ = b.store.Close()
	}
}
