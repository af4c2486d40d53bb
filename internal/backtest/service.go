package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"scalper/internal/logger"
	"scalper/internal/market"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultFetchPerSec   = 8
	defaultMaxConcurrent = 2
)

// FetchParams 描述一次补齐缓存的请求。
type FetchParams struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
}

// ServiceConfig 配置 Service。
type ServiceConfig struct {
	Store           *Store
	Sources         map[string]CandleSource
	DefaultExchange string
	RateLimitPerMin int
	MaxBatch        int
	MaxConcurrent   int
}

// Service 按缺口分页拉取历史 K 线并写入本地缓存，支持同步调用与异步任务。
type Service struct {
	store           *Store
	sources         map[string]CandleSource
	defaultExchange string
	maxBatch        int

	limiter *rate.Limiter
	sem     *semaphore.Weighted
	jobs    *jobBook

	baseCtx atomic.Pointer[context.Context]
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store 不能为空")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("至少需要一个数据源")
	}
	perSec := rate.Limit(defaultFetchPerSec)
	if cfg.RateLimitPerMin > 0 {
		perSec = rate.Limit(float64(cfg.RateLimitPerMin) / 60)
	}
	svc := &Service{
		store:    cfg.Store,
		sources:  make(map[string]CandleSource, len(cfg.Sources)),
		maxBatch: positiveOr(cfg.MaxBatch, binanceMaxLimit),
		limiter:  rate.NewLimiter(perSec, 1),
		sem:      semaphore.NewWeighted(int64(positiveOr(cfg.MaxConcurrent, defaultMaxConcurrent))),
		jobs:     newJobBook(),
	}
	for name, src := range cfg.Sources {
		svc.sources[strings.ToLower(name)] = src
	}
	svc.defaultExchange = strings.ToLower(cfg.DefaultExchange)
	if _, ok := svc.sources[svc.defaultExchange]; !ok {
		svc.defaultExchange = ""
		for name := range svc.sources {
			if svc.defaultExchange == "" || name < svc.defaultExchange {
				svc.defaultExchange = name
			}
		}
	}
	return svc, nil
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// SetContext 注入宿主 ctx，异步任务随之取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx.Store(&ctx)
	}
}

func (s *Service) ctx() context.Context {
	if p := s.baseCtx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

func (s *Service) Store() *Store { return s.store }

// target 是规范化后的一次拉取目标。
type target struct {
	params FetchParams
	tf     market.Timeframe
	src    CandleSource
}

func (s *Service) resolve(params FetchParams) (target, error) {
	if strings.TrimSpace(params.Symbol) == "" {
		return target{}, errors.New("symbol 不能为空")
	}
	tf, err := market.ParseTimeframe(params.Timeframe)
	if err != nil {
		return target{}, err
	}
	exchange := strings.ToLower(strings.TrimSpace(params.Exchange))
	if exchange == "" {
		exchange = s.defaultExchange
	}
	src, ok := s.sources[exchange]
	if !ok {
		return target{}, fmt.Errorf("未知数据源: %s", exchange)
	}
	params.Exchange = exchange
	params.Symbol = strings.ToUpper(strings.TrimSpace(params.Symbol))
	params.Timeframe = tf.Key
	params.Start, params.End = tf.AlignRange(params.Start, params.End)
	return target{params: params, tf: tf, src: src}, nil
}

func (s *Service) integrity(ctx context.Context, t target) (IntegrityReport, error) {
	return s.store.CheckIntegrity(ctx, t.params.Symbol, t.tf, t.params.Start, t.params.End)
}

// Sync 同步补齐 [Start,End] 区间的缓存，返回补齐后的完整度。
func (s *Service) Sync(ctx context.Context, params FetchParams) (IntegrityReport, error) {
	t, err := s.resolve(params)
	if err != nil {
		return IntegrityReport{}, err
	}
	before, err := s.integrity(ctx, t)
	if err != nil || before.Complete() {
		return before, err
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return before, err
	}
	defer s.sem.Release(1)

	logger.Infof("[fetch] %s %s 缺口=%d，开始补齐", t.params.Symbol, t.tf.Key, len(before.Gaps))
	if _, err := s.fill(ctx, t, before.Gaps, nil); err != nil {
		return before, err
	}
	return s.integrity(ctx, t)
}

// SubmitFetch 提交异步拉取任务；区间已完整时直接返回 done。
func (s *Service) SubmitFetch(params FetchParams) (FetchJob, error) {
	t, err := s.resolve(params)
	if err != nil {
		return FetchJob{}, err
	}
	if t.params.Start == t.params.End {
		return FetchJob{}, errors.New("start 与 end 需要构成区间")
	}
	before, err := s.integrity(s.ctx(), t)
	if err != nil {
		return FetchJob{}, err
	}
	job := s.jobs.add(FetchJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Params:    t.params,
		Total:     before.Expected,
		Completed: before.Present,
		Missing:   before.Gaps,
	})
	logger.Infof("[fetch] 任务 %s 提交：%s %s [%d,%d] 预计=%d 缺口=%d",
		job.ID, t.params.Symbol, t.params.Timeframe, t.params.Start, t.params.End, before.Expected, len(before.Gaps))

	if before.Expected == 0 || before.Complete() {
		s.jobs.finish(job.ID, JobStatusDone, "数据已完整，无需重新拉取", nil, nil)
		return s.jobs.get(job.ID)
	}
	go s.runJob(job.ID, t, before.Gaps)
	return job, nil
}

func (s *Service) runJob(id string, t target, gaps []Gap) {
	ctx := s.ctx()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.jobs.finish(id, JobStatusFailed, "服务已关闭", gaps, nil)
		return
	}
	defer s.sem.Release(1)

	s.jobs.update(id, func(j *FetchJob) { j.Status = JobStatusRunning })
	logger.Infof("[fetch] 任务 %s 开始，缺口=%d", id, len(gaps))

	warnings, err := s.fill(ctx, t, gaps, func(n int) {
		s.jobs.update(id, func(j *FetchJob) { j.Completed += int64(n) })
	})
	if err != nil {
		s.jobs.finish(id, JobStatusFailed, err.Error(), gaps, warnings)
		return
	}
	after, err := s.integrity(ctx, t)
	switch {
	case err != nil:
		s.jobs.finish(id, JobStatusFailed, "完整性检查失败: "+err.Error(), nil, warnings)
	case after.Complete():
		s.jobs.finish(id, JobStatusDone, "拉取完成", nil, warnings)
	default:
		s.jobs.finish(id, JobStatusPartial, "已完成，但仍存在缺口", after.Gaps, warnings)
	}
	logger.Infof("[fetch] 任务 %s 结束，剩余缺口=%d", id, len(after.Gaps))
}

// fill 逐段分页拉取缺口并写入缓存；空页视为数据源在该段已无数据。
func (s *Service) fill(ctx context.Context, t target, gaps []Gap, progress func(int)) ([]string, error) {
	var warnings []string
	for _, gap := range gaps {
		empty, err := s.fillGap(ctx, t, gap, progress)
		if err != nil {
			return warnings, err
		}
		if empty >= 0 {
			warnings = append(warnings, fmt.Sprintf("区间 [%d,%d] 拉取为空", empty, gap.To))
		}
	}
	return warnings, nil
}

// fillGap 返回首个空页的起点，全部拉到时返回 -1。
func (s *Service) fillGap(ctx context.Context, t target, gap Gap, progress func(int)) (int64, error) {
	step := t.tf.Millis()
	for cursor := gap.From; cursor <= gap.To; {
		if err := s.limiter.Wait(ctx); err != nil {
			return -1, err
		}
		page, err := t.src.Fetch(ctx, FetchRequest{
			Symbol:   t.params.Symbol,
			Interval: t.tf.SourceInterval,
			Start:    cursor,
			End:      gap.To + step - 1,
			Limit:    min(int((gap.To-cursor)/step)+1, s.maxBatch),
		})
		if err != nil {
			return -1, fmt.Errorf("%s 拉取失败: %w", t.src.Name(), err)
		}
		if len(page) == 0 {
			return cursor, nil
		}
		market.FillCloseTimes(page, t.tf.Duration)
		n, err := s.store.InsertCandles(ctx, t.params.Symbol, t.tf.Key, page)
		if err != nil {
			return -1, fmt.Errorf("写入失败: %w", err)
		}
		if progress != nil {
			progress(n)
		}
		next := page[len(page)-1].OpenTime + step
		if next <= cursor {
			break
		}
		cursor = next
	}
	return -1, nil
}

// JobSnapshot 返回任务副本。
func (s *Service) JobSnapshot(id string) (FetchJob, error) { return s.jobs.get(id) }

// JobsSnapshot 返回全部任务副本（按提交时间排序）。
func (s *Service) JobsSnapshot() []FetchJob { return s.jobs.list() }

// ManifestInfo 读取本地缓存概况。
func (s *Service) ManifestInfo(ctx context.Context, symbol, timeframe string) (Manifest, error) {
	if symbol == "" || timeframe == "" {
		return Manifest{}, errors.New("symbol/timeframe 不能为空")
	}
	return s.store.Manifest(ctx, symbol, timeframe)
}

// QueryCandles 读取指定区间 K 线。
func (s *Service) QueryCandles(ctx context.Context, symbol, timeframe string, start, end int64, limit int) ([]market.Candle, error) {
	if symbol == "" || timeframe == "" {
		return nil, errors.New("symbol/timeframe 不能为空")
	}
	return s.store.QueryCandles(ctx, symbol, timeframe, start, end, limit)
}
