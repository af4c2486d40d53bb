// Package live 驱动 paper 模式：按交易周期对齐轮询最新 K 线，喂给 engine，
// 并把状态、成交与通知落到各自的出口。
package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scalper/internal/config"
	"scalper/internal/engine"
	"scalper/internal/gateway/notifier"
	"scalper/internal/logger"
	"scalper/internal/market"
	"scalper/internal/pkg/circuit"
	"scalper/internal/scheduler"
	"scalper/internal/store"

	"golang.org/x/sync/errgroup"
)

// StateStore 持久化引擎快照与成交历史。
type StateStore interface {
	SaveState(ctx context.Context, key string, st engine.State) error
	LoadState(ctx context.Context, key string) (engine.State, bool, error)
	ListTrades(ctx context.Context, key string, limit int) ([]engine.ClosedTrade, error)
}

type Options struct {
	Config   *config.Config
	Source   market.Source
	Engine   *engine.Engine
	Store    StateStore
	StateKey string
	Notifier notifier.TextNotifier
	Breaker  *circuit.Breaker
	Now      func() time.Time
}

// Runner 是 live/paper 主循环。engine 只在 mu 下访问。
type Runner struct {
	cfg      *config.Config
	src      market.Source
	eng      *engine.Engine
	store    StateStore
	key      string
	notifier notifier.TextNotifier
	breaker  *circuit.Breaker
	now      func() time.Time
	buf      *store.CandleBuffer

	trading market.Timeframe
	limits  map[string]int

	mu     sync.Mutex
	status Status
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Config == nil || opts.Source == nil || opts.Engine == nil {
		return nil, fmt.Errorf("live runner 需要 config/source/engine")
	}
	cfg := opts.Config
	tf, err := market.ParseTimeframe(cfg.Market.TradingTimeframe)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:      cfg,
		src:      opts.Source,
		eng:      opts.Engine,
		store:    opts.Store,
		key:      opts.StateKey,
		notifier: opts.Notifier,
		breaker:  opts.Breaker,
		now:      opts.Now,
		trading:  tf,
		limits:   make(map[string]int, 3),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.breaker == nil {
		r.breaker = circuit.New("live-"+opts.Source.Name(), 3, 2*time.Minute)
	}
	if r.key == "" {
		r.key = cfg.Market.Symbol + "@" + cfg.Strategy.Name
	}
	maxLimit := 0
	for _, key := range cfg.Market.Timeframes() {
		limit := cfg.Market.HistoryLimit
		if key == cfg.Market.RangeTimeframe && key != tf.Key {
			limit = rangeLimit(key, limit)
		}
		r.limits[key] = limit
		if limit > maxLimit {
			maxLimit = limit
		}
	}
	r.buf = store.NewCandleBuffer(maxLimit)
	r.eng.AddObserver(notifyObserver{n: r.notifier, symbol: cfg.Market.Symbol, now: r.now})
	r.status = Status{
		Symbol:   cfg.Market.Symbol,
		Strategy: r.eng.Strategy().Name(),
		Exchange: opts.Source.Name(),
	}
	return r, nil
}

// rangeLimit 让参考区间周期至少覆盖一整天。
func rangeLimit(key string, limit int) int {
	tf, err := market.ParseTimeframe(key)
	if err != nil || tf.Duration <= 0 {
		return limit
	}
	day := int(24*time.Hour/tf.Duration) + 1
	if day > limit {
		limit = day
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit
}

// Restore 从 StateStore 恢复账户、槽位与成交历史。
func (r *Runner) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	st, ok, err := r.store.LoadState(ctx, r.key)
	if err != nil {
		return fmt.Errorf("load live state: %w", err)
	}
	if !ok {
		logger.Infof("[live] %s 无历史状态，使用初始资金 %.2f", r.key, r.eng.Ledger().Balance())
		return nil
	}
	trades, err := r.store.ListTrades(ctx, r.key, 0)
	if err != nil {
		return fmt.Errorf("load live trades: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eng.Restore(st)
	r.eng.Ledger().Restore(st.Account, trades)
	logger.Infof("[live] 恢复状态 %s: balance=%.2f slot=%s trades=%d", r.key, st.Account.Balance, st.Slot(), len(trades))
	return nil
}

// Run 阻塞轮询直到 ctx 取消；退出前保存一次状态。
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Restore(ctx); err != nil {
		return err
	}
	r.setRunning(true)
	defer r.setRunning(false)

	r.send(fmt.Sprintf("*Scalper paper 启动* ✅\n%s %s %s balance=%.2f",
		r.cfg.Market.Symbol, r.trading.Key, r.eng.Strategy().Name(), r.balance()))

	interval := time.Duration(r.cfg.Market.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = r.trading.Duration
	}
	ticker := scheduler.NewBarTicker(r.trading.Duration, interval, scheduler.DefaultKlineGrace)
	ticker.Name = "live"
	ticker.RunImmediately = true
	ticker.SetClock(r.now)
	ticker.Run(ctx, func() {
		if err := r.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnf("[live] poll 失败: %v", err)
		}
	})

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.persist(saveCtx)
	logger.Infof("[live] 已停止，最终余额 %.2f", r.balance())
	return nil
}

// Poll 执行一次完整轮询：休市检查、拉取、逐根推进、持久化。
func (r *Runner) Poll(ctx context.Context) error {
	now := r.now()
	r.mu.Lock()
	open := r.eng.Scheduler().InMarketHours(now)
	r.status.MarketOpen = open
	r.status.LastPollAt = now
	r.status.Polls++
	r.mu.Unlock()
	if !open {
		logger.Infof("[live] %s 休市中 (%s)，跳过本轮", r.cfg.Market.Symbol, now.Format(time.RFC3339))
		return nil
	}

	err := r.breaker.Do(func() error { return r.fetch(ctx) })
	r.mu.Lock()
	r.status.Breaker = r.breaker.State().String()
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
	}
	r.mu.Unlock()
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			logger.Warnf("[live] 熔断中，暂停拉取 %s", r.src.Name())
			return nil
		}
		return err
	}

	before := r.tradeCount()
	stepped := r.step()
	r.persist(ctx)
	if r.tradeCount() > before {
		r.writeTradeLog()
	}
	r.logStatus(stepped)
	return nil
}

func (r *Runner) fetch(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for key, limit := range r.limits {
		key, limit := key, limit
		g.Go(func() error {
			ks, err := r.src.FetchHistory(gctx, r.cfg.Market.Symbol, key, limit)
			if err != nil {
				return fmt.Errorf("fetch %s %s: %w", r.cfg.Market.Symbol, key, err)
			}
			if key == r.trading.Key && len(ks) == 0 {
				return fmt.Errorf("fetch %s %s: no closed candles", r.cfg.Market.Symbol, key)
			}
			_, err = r.buf.Merge(r.cfg.Market.Symbol, key, ks)
			return err
		})
	}
	return g.Wait()
}

// step 把上次处理之后的已收盘交易周期 K 线依次交给 engine；首次运行只处理最新一根。
func (r *Runner) step() int {
	sym := r.cfg.Market.Symbol
	trading := r.buf.Get(sym, r.trading.Key)
	var ranges, confirm market.Candles
	if key := r.cfg.Market.RangeTimeframe; key != "" {
		ranges = r.buf.Get(sym, key)
	}
	if key := r.cfg.Market.ConfirmTimeframe; key != "" {
		confirm = r.buf.Get(sym, key)
	}
	history := r.cfg.Market.HistoryLimit

	r.mu.Lock()
	defer r.mu.Unlock()
	last := r.eng.Snapshot().LastBarTime
	start := len(trading) - 1
	if last > 0 {
		start = len(trading) - len(trading.After(last))
	}
	if start < 0 {
		return 0
	}
	stepped := 0
	for i := start; i < len(trading); i++ {
		lo := i + 1 - history
		if lo < 0 {
			lo = 0
		}
		if r.eng.Step(engine.Bar{
			Candle:  trading[i],
			History: trading[lo : i+1],
			Ranges:  ranges,
			Confirm: confirm,
		}) {
			stepped++
			c := trading[i]
			r.status.LastCandle = &c
		}
	}
	return stepped
}

func (r *Runner) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	r.mu.Lock()
	st := r.eng.Snapshot()
	r.mu.Unlock()
	if err := r.store.SaveState(ctx, r.key, st); err != nil {
		logger.Warnf("[live] 保存状态失败: %v", err)
	}
}

func (r *Runner) writeTradeLog() {
	path := strings.TrimSpace(r.cfg.Live.TradeLog)
	if path == "" {
		return
	}
	r.mu.Lock()
	tl := NewTradeLog(r.eng.Ledger(), r.now())
	r.mu.Unlock()
	if err := tl.WriteFile(path); err != nil {
		logger.Warnf("[live] 写入 trade log 失败: %v", err)
	}
}

func (r *Runner) logStatus(stepped int) {
	st := r.Status()
	r.mu.Lock()
	maxTrades := r.cfg.Risk.MaxDailyTrades
	r.mu.Unlock()
	price, bar := 0.0, "-"
	if st.LastCandle != nil {
		price, bar = st.LastCandle.Close, st.LastCandle.TimeString()
	}
	logger.Infof("[live] %s bar=%s close=%.2f slot=%s balance=%.2f pnl=%.2f day=%s trades=%d/%d loss=%.2f new_bars=%d",
		st.Symbol, bar, price, st.State.Slot(), st.State.Account.Balance, st.TotalPnL,
		st.State.Day.Key, st.State.Day.Trades, maxTrades, st.State.Day.Loss, stepped)
}

// ApplyConfig 热更新每日风控上限；其余参数需要重启生效。
func (r *Runner) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	r.mu.Lock()
	r.eng.Scheduler().UpdateLimits(cfg.Risk.MaxDailyTrades, cfg.Risk.MaxDailyLossUSD)
	r.cfg.Risk.MaxDailyTrades = cfg.Risk.MaxDailyTrades
	r.cfg.Risk.MaxDailyLossUSD = cfg.Risk.MaxDailyLossUSD
	r.mu.Unlock()
	logger.Infof("[live] 风控上限已更新: max_daily_trades=%d max_daily_loss=%.2f",
		cfg.Risk.MaxDailyTrades, cfg.Risk.MaxDailyLossUSD)
}

func (r *Runner) send(text string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.SendText(text); err != nil {
		logger.Warnf("[live] 通知发送失败: %v", err)
	}
}

func (r *Runner) balance() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eng.Ledger().Balance()
}

func (r *Runner) tradeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.eng.Ledger().Trades())
}

func (r *Runner) setRunning(v bool) {
	r.mu.Lock()
	r.status.Running = v
	r.mu.Unlock()
}
