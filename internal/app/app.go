package app

import (
	"context"
	"fmt"

	"scalper/internal/backtest"
	"scalper/internal/config"
	"scalper/internal/gateway/notifier"
	"scalper/internal/logger"
	backtesthttp "scalper/internal/transport/http/backtest"
	livehttp "scalper/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→按子命令启动回测、live 或 HTTP 服务。
type App struct {
	cfg      *config.Config
	builder  *AppBuilder
	backtest *BacktestService
	live     *LiveService
	notifier notifier.TextNotifier
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg, opts)
}

// RunBacktest 同步执行一次回放，输出汇总与报告。
func (a *App) RunBacktest(ctx context.Context, req backtest.RunRequest) (*backtest.Result, error) {
	if a == nil || a.backtest == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	a.printSummary()
	a.backtest.Start(ctx)
	return a.backtest.Run(ctx, req)
}

// RunLive 启动 paper 轮询，同时对外暴露 HTTP 查询接口。
func (a *App) RunLive(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.printSummary()
	if a.live == nil {
		ls, err := a.builder.buildLive(ctx, a.notifier)
		if err != nil {
			return err
		}
		a.live = ls
	}
	return a.serve(ctx, a.live)
}

// Serve 只启动 HTTP 接口（回测任务与结果查询）。
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.printSummary()
	return a.serve(ctx, nil)
}

func (a *App) serve(ctx context.Context, ls *LiveService) error {
	a.backtest.Start(ctx)
	server, err := a.httpServer(ls)
	if err != nil {
		return err
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if ls != nil {
		group.Go(func() error {
			return ls.Run(ctx)
		})
	}
	return group.Wait()
}

func (a *App) httpServer(ls *LiveService) (*backtesthttp.Server, error) {
	var liveRouter *livehttp.Router
	if ls != nil {
		liveRouter = ls.router
	}
	server, err := backtesthttp.NewServer(backtesthttp.Config{
		Addr:      a.cfg.App.HTTPAddr,
		Svc:       a.backtest.svc,
		Simulator: a.backtest.sim,
		Results:   a.backtest.results,
		Live:      liveRouter,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 失败: %w", err)
	}
	logger.Infof("✓ HTTP 接口监听 %s", server.Addr())
	return server, nil
}

func (a *App) printSummary() {
	if a.Summary != nil {
		logger.InfoBlock(a.Summary.Render())
	}
}

// Backtest exposes the backtest stack (for tests and tooling).
func (a *App) Backtest() *BacktestService {
	if a == nil {
		return nil
	}
	return a.backtest
}

// Close 释放所有持有的资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	a.live.Close()
	a.backtest.Close()
}
