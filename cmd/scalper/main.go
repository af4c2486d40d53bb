package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"scalper/internal/app"
	"scalper/internal/backtest"
	"scalper/internal/config"
	"scalper/internal/logger"
)

const usage = `usage: scalper <command> [flags]

commands:
  backtest   replay cached/fetched candles and write a report
  live       paper trading loop (Ctrl+C to stop)
  serve      HTTP API for fetch jobs and backtest runs
  config     print the effective configuration as YAML
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "backtest":
		err = runBacktest(ctx, args)
	case "live":
		err = runLive(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "config":
		err = runConfig(args)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("运行失败: %v", err)
	}
}

func runBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (default $SCALPER_CONFIG or configs/config.yaml)")
	symbol := fs.String("symbol", "", "override market.symbol")
	days := fs.Int("days", 0, "days back from now (overrides backtest.days)")
	start := fs.String("start", "", "window start, YYYY-MM-DD (UTC)")
	end := fs.String("end", "", "window end, YYYY-MM-DD (UTC)")
	balance := fs.Float64("balance", 0, "initial balance (overrides risk.initial_balance)")
	_ = fs.Parse(args)

	a, cleanup, err := bootstrap(*cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	req := backtest.RunRequest{Symbol: *symbol, Days: *days, InitialBalance: *balance, Notes: "cli"}
	if req.StartTS, err = parseDate(*start); err != nil {
		return err
	}
	if req.EndTS, err = parseDate(*end); err != nil {
		return err
	}
	res, err := a.RunBacktest(ctx, req)
	if err != nil {
		return err
	}
	logger.Infof("[backtest] run=%s status=%s bars=%d", res.Run.ID, res.Run.Status, res.Run.Stats.Bars)
	return nil
}

func runLive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file")
	_ = fs.Parse(args)

	a, cleanup, err := bootstrap(*cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()
	return a.RunLive(ctx)
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file")
	_ = fs.Parse(args)

	a, cleanup, err := bootstrap(*cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()
	return a.Serve(ctx)
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file")
	legacy := fs.String("legacy", "", "convert a legacy JSON config file to YAML")
	_ = fs.Parse(args)

	if *legacy != "" {
		cfg, err := config.LoadLegacyJSON(*legacy)
		if err != nil {
			return err
		}
		out, err := config.DumpRaw(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}
	cfg, err := config.Load(config.ResolvePath(*cfgPath))
	if err != nil {
		return err
	}
	out, err := config.Dump(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// bootstrap 读取配置、初始化日志输出并构建 App。
func bootstrap(flagPath string) (*app.App, func(), error) {
	path := config.ResolvePath(flagPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	if logFile != nil {
		files = append(files, logFile)
	}
	journal, err := openAppend(cfg.App.JournalPath)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("初始化 journal 失败: %w", err)
	}
	if journal != nil {
		logger.SetJournalWriter(journal)
		files = append(files, journal)
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，策略=%s，交易对=%s）", cfg.App.Env, cfg.Strategy.Name, cfg.Market.Symbol)

	a, err := app.NewApp(cfg, app.WithConfigPath(path))
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("初始化应用失败: %w", err)
	}
	return a, func() {
		a.Close()
		logger.SetJournalWriter(nil)
		closeAll()
	}, nil
}

func setupLogOutput(path string) (*os.File, error) {
	file, err := openAppend(path)
	if err != nil || file == nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func openAppend(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func parseDate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}
