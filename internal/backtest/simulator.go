package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scalper/internal/config"
	"scalper/internal/engine"
	"scalper/internal/logger"
	"scalper/internal/market"
	symbolpkg "scalper/internal/pkg/symbol"
	"scalper/internal/session"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// minScoreHistory 是质量评分所需的最少交易周期 K 线数。
const minScoreHistory = 101

// Notifier 用于运行完成后的推送（Telegram 等）。
type Notifier interface {
	SendText(text string) error
}

type SimulatorConfig struct {
	Config        *config.Config
	CandleStore   *Store
	ResultStore   *ResultStore
	Fetcher       *Service
	Notifier      Notifier
	MaxConcurrent int
	// Now 覆盖当前时间，测试使用。
	Now func() time.Time
}

// Simulator 负责将历史 K 线按 bar 回放进 engine，并持久化结果。
type Simulator struct {
	cfg      *config.Config
	store    *Store
	results  *ResultStore
	fetcher  *Service
	notifier Notifier
	now      func() time.Time

	sem     chan struct{}
	baseCtx context.Context
}

// Series 是一次回放所需的全部 K 线（含预热段）。
type Series struct {
	Trading market.Candles
	Ranges  market.Candles
	Confirm market.Candles
}

// Result 是同步回放的完整输出。
type Result struct {
	Run     Run
	Trades  []engine.ClosedTrade
	Equity  []Snapshot
	Candles market.Candles
	Final   engine.State
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("config 不能为空")
	}
	if cfg.CandleStore == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if cfg.ResultStore == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		cfg:      cfg.Config,
		store:    cfg.CandleStore,
		results:  cfg.ResultStore,
		fetcher:  cfg.Fetcher,
		notifier: cfg.Notifier,
		now:      now,
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

func (s *Simulator) Results() *ResultStore { return s.results }

// Plan 解析请求与配置，得到对齐后的回放区间。
func (s *Simulator) Plan(req RunRequest) (RunConfig, error) {
	cfg := s.cfg
	tf, err := market.ParseTimeframe(cfg.Market.TradingTimeframe)
	if err != nil {
		return RunConfig{}, err
	}
	symbol := symbolpkg.Normalize(req.Symbol)
	if symbol == "" {
		symbol = cfg.Market.Symbol
	}
	lastClosed := tf.LastClosedOpen(s.now())
	start, end := req.StartTS, req.EndTS
	if start <= 0 {
		start, end, err = s.defaultWindow(tf, req.Days, lastClosed)
		if err != nil {
			return RunConfig{}, err
		}
	}
	if end <= 0 || end > lastClosed {
		end = lastClosed
	}
	if start <= 0 || end <= start {
		return RunConfig{}, fmt.Errorf("start/end 非法")
	}
	start, end = tf.AlignRange(start, end)
	balance := req.InitialBalance
	if balance <= 0 {
		balance = cfg.Risk.InitialBalance
	}
	rc := RunConfig{
		Symbol:           symbol,
		Strategy:         cfg.Strategy.Name,
		StartTS:          start,
		EndTS:            end,
		TradingTimeframe: tf.Key,
		InitialBalance:   balance,
		RiskPerTrade:     cfg.Risk.RiskPerTrade,
		RewardRatio:      cfg.Strategy.RewardRatio,
		FeeRate:          cfg.Risk.FeeRate,
		QualityGate:      cfg.Strategy.Quality.Enabled,
		SessionWindowed:  cfg.Session.Enabled,
		Notes:            req.Notes,
	}
	if rc.SessionWindowed {
		rc.RangeTimeframe = cfg.Market.RangeTimeframe
		rc.Timezone = cfg.Session.Timezone
	}
	if rc.QualityGate {
		rc.ConfirmTimeframe = cfg.Market.ConfirmTimeframe
	}
	return rc, nil
}

func (s *Simulator) defaultWindow(tf market.Timeframe, days int, lastClosed int64) (int64, int64, error) {
	bt := s.cfg.Backtest
	if strings.TrimSpace(bt.Start) != "" {
		loc, err := session.LoadLocation(s.cfg.Session.Timezone)
		if err != nil {
			return 0, 0, err
		}
		from, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(bt.Start), loc)
		if err != nil {
			return 0, 0, fmt.Errorf("backtest.start: %w", err)
		}
		end := lastClosed
		if strings.TrimSpace(bt.End) != "" {
			to, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(bt.End), loc)
			if err != nil {
				return 0, 0, fmt.Errorf("backtest.end: %w", err)
			}
			end = to.AddDate(0, 0, 1).UnixMilli() - tf.Millis()
		}
		return from.UnixMilli(), end, nil
	}
	if days <= 0 {
		days = bt.Days
	}
	if days <= 0 {
		days = 1
	}
	return lastClosed - int64(days)*24*time.Hour.Milliseconds(), lastClosed, nil
}

func newRun(rc RunConfig) Run {
	return Run{
		ID:       uuid.NewString(),
		Symbol:   rc.Symbol,
		Strategy: rc.Strategy,
		Status:   RunStatusPending,
		StartTS:  rc.StartTS,
		EndTS:    rc.EndTS,
		Config:   rc,
		Stats:    RunStats{InitialBalance: rc.InitialBalance, FinalBalance: rc.InitialBalance},
	}
}

// Run 同步执行一次回放（CLI 使用）。
func (s *Simulator) Run(ctx context.Context, req RunRequest) (*Result, error) {
	rc, err := s.Plan(req)
	if err != nil {
		return nil, err
	}
	run := newRun(rc)
	if err := s.results.InsertRun(ctx, run); err != nil {
		return nil, err
	}
	res, err := s.execute(ctx, run)
	if err != nil {
		_ = s.results.UpdateRunStatus(context.Background(), run.ID, RunStatusFailed, err.Error())
		return nil, err
	}
	return res, nil
}

// StartRun 创建回测任务并立即返回，回放过程在后台进行。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	rc, err := s.Plan(req)
	if err != nil {
		return Run{}, err
	}
	run := newRun(rc)
	if err := s.results.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run)
	return run, nil
}

func (s *Simulator) runLoop(run Run) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s 等待可用 worker", run.ID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	if _, err := s.execute(ctx, run); err != nil {
		logger.Warnf("[backtest] run %s 失败: %v", run.ID, err)
		_ = s.results.UpdateRunStatus(context.Background(), run.ID, RunStatusFailed, err.Error())
	}
}

func (s *Simulator) execute(ctx context.Context, run Run) (*Result, error) {
	rc := run.Config
	s.status(ctx, run.ID, RunStatusRunning, "加载 K 线…")
	series, err := s.LoadSeries(ctx, rc)
	if err != nil {
		return nil, err
	}
	startIdx := 0
	for startIdx < len(series.Trading) && series.Trading[startIdx].OpenTime < rc.StartTS {
		startIdx++
	}
	if startIdx >= len(series.Trading) {
		return nil, fmt.Errorf("未找到 %s %s 的起始 K 线", rc.Symbol, rc.TradingTimeframe)
	}

	var current market.Candle
	rec := newRecorder(run.ID, rc.InitialBalance, rc.StartTS, func() int64 { return current.OpenTime })
	cfg := *s.cfg
	cfg.Market.Symbol = rc.Symbol
	eng, err := engine.FromConfig(&cfg, rc.InitialBalance, rec, engine.JournalObserver{Prefix: "backtest"})
	if err != nil {
		return nil, err
	}
	s.status(ctx, run.ID, RunStatusRunning, fmt.Sprintf("回放 %d 根 K 线", len(series.Trading)-startIdx))

	bars := replay(ctx, eng, series, startIdx, s.historyLimit(), func(c market.Candle) { current = c })
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if last, ok := series.Trading.Last(); ok {
		current = last
		eng.Finish(last)
	}

	trades := eng.Ledger().Trades()
	stats := Summarize(rc.InitialBalance, trades, rec.skipped)
	stats.Bars = bars
	run.Stats = stats
	run.Status = RunStatusDone
	run.Message = fmt.Sprintf("完成：%d 笔交易", stats.Trades)
	run.CompletedAt = stats.FinishedAt

	if err := s.results.InsertTrades(ctx, run.ID, rec.trades); err != nil {
		logger.Warnf("[backtest] run %s 写入交易失败: %v", run.ID, err)
	}
	if err := s.results.InsertSnapshots(ctx, run.ID, rec.snaps); err != nil {
		logger.Warnf("[backtest] run %s 写入资金曲线失败: %v", run.ID, err)
	}
	if err := s.results.InsertEvents(ctx, run.ID, rec.events); err != nil {
		logger.Warnf("[backtest] run %s 写入事件失败: %v", run.ID, err)
	}
	if err := s.results.UpdateRunSummary(ctx, run.ID, RunStatusDone, stats, run.Message); err != nil {
		logger.Warnf("[backtest] run %s 更新汇总失败: %v", run.ID, err)
	}
	logger.Infof("[backtest] run %s 完成 trades=%d pnl=%.2f roi=%.2f%%", run.ID, stats.Trades, stats.TotalPnL, stats.ROI)
	s.notify(run)

	return &Result{
		Run:     run,
		Trades:  trades,
		Equity:  append([]Snapshot(nil), rec.snaps...),
		Candles: series.Trading[startIdx:],
		Final:   eng.Snapshot(),
	}, nil
}

// replay 逐 bar 驱动 engine，返回处理的 bar 数。
func replay(ctx context.Context, eng *engine.Engine, series Series, startIdx, historyLimit int, onBar func(market.Candle)) int {
	var rangeIdx, confirmIdx int
	processed := 0
	for i := startIdx; i < len(series.Trading); i++ {
		if ctx.Err() != nil {
			return processed
		}
		c := series.Trading[i]
		onBar(c)
		closeTs := c.CloseTime
		for rangeIdx < len(series.Ranges) && series.Ranges[rangeIdx].OpenTime <= closeTs {
			rangeIdx++
		}
		for confirmIdx < len(series.Confirm) && series.Confirm[confirmIdx].OpenTime <= closeTs {
			confirmIdx++
		}
		lo := i + 1 - historyLimit
		if lo < 0 {
			lo = 0
		}
		if eng.Step(engine.Bar{
			Candle:  c,
			History: series.Trading[lo : i+1],
			Ranges:  series.Ranges[:rangeIdx].Tail(historyLimit),
			Confirm: series.Confirm[:confirmIdx].Tail(historyLimit),
		}) {
			processed++
		}
	}
	return processed
}

func (s *Simulator) historyLimit() int {
	if s.cfg.Market.HistoryLimit > minScoreHistory {
		return s.cfg.Market.HistoryLimit
	}
	return minScoreHistory
}

// LoadSeries 并行补齐并读取各周期 K 线。
func (s *Simulator) LoadSeries(ctx context.Context, rc RunConfig) (Series, error) {
	var out Series
	warm := s.historyLimit()
	now := s.now()
	g, gctx := errgroup.WithContext(ctx)
	load := func(tfKey string, warmup int, dst *market.Candles) {
		if tfKey == "" {
			return
		}
		g.Go(func() error {
			tf, err := market.ParseTimeframe(tfKey)
			if err != nil {
				return err
			}
			start := rc.StartTS - int64(warmup)*tf.Millis()
			end := rc.EndTS
			if last := tf.LastClosedOpen(now); end > last {
				end = last
			}
			if s.fetcher != nil {
				report, err := s.fetcher.Sync(gctx, FetchParams{Symbol: rc.Symbol, Timeframe: tf.Key, Start: start, End: end})
				if err != nil {
					return fmt.Errorf("sync %s %s: %w", rc.Symbol, tf.Key, err)
				}
				if !report.Complete() {
					logger.Warnf("[backtest] %s %s 仍有 %d 段缺口", rc.Symbol, tf.Key, len(report.Gaps))
				}
			}
			data, err := s.store.RangeCandles(gctx, rc.Symbol, tf.Key, start, end)
			if err != nil {
				return err
			}
			market.FillCloseTimes(data, tf.Duration)
			*dst = data
			return nil
		})
	}
	load(rc.TradingTimeframe, warm, &out.Trading)
	load(rc.RangeTimeframe, rangeWarmup(rc.RangeTimeframe), &out.Ranges)
	load(rc.ConfirmTimeframe, warm, &out.Confirm)
	if err := g.Wait(); err != nil {
		return Series{}, err
	}
	if len(out.Trading) == 0 {
		return Series{}, fmt.Errorf("%s %s 没有可用 K 线", rc.Symbol, rc.TradingTimeframe)
	}
	return out, nil
}

// rangeWarmup 为参考区间周期预留一天的 K 线。
func rangeWarmup(tfKey string) int {
	tf, err := market.ParseTimeframe(tfKey)
	if err != nil || tf.Duration <= 0 {
		return 0
	}
	return int(24*time.Hour/tf.Duration) + 1
}

func (s *Simulator) status(ctx context.Context, runID, status, msg string) {
	if err := s.results.UpdateRunStatus(ctx, runID, status, msg); err != nil {
		logger.Debugf("update run status failed: %v", err)
	}
}

func (s *Simulator) notify(run Run) {
	if s.notifier == nil {
		return
	}
	st := run.Stats
	text := fmt.Sprintf("Backtest %s %s\nTrades: %d (win rate %.1f%%)\nP&L: $%.2f (%.2f%%)\nFinal balance: $%.2f",
		run.Symbol, run.Strategy, st.Trades, st.WinRate, st.TotalPnL, st.ROI, st.FinalBalance)
	if err := s.notifier.SendText(text); err != nil {
		logger.Warnf("[backtest] 推送结果失败: %v", err)
	}
}
