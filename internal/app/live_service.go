package app

import (
	"context"
	"fmt"
	"time"

	"scalper/internal/config"
	"scalper/internal/engine"
	"scalper/internal/gateway/notifier"
	"scalper/internal/live"
	"scalper/internal/logger"
	"scalper/internal/market"
	"scalper/internal/pkg/circuit"
	"scalper/internal/store/gormstore"
	livehttp "scalper/internal/transport/http/live"
)

const (
	breakerThreshold = 3
	breakerCooldown  = 5 * time.Minute
	observerTimeout  = 3 * time.Second
)

// LiveService 持有 paper 模式的运行时依赖。
type LiveService struct {
	runner  *live.Runner
	store   *gormstore.GormStore
	watcher *config.Watcher
	key     string
	router  *livehttp.Router
}

func newLiveService(ctx context.Context, cfg *config.Config, src market.Source, tn notifier.TextNotifier, configPath string) (*LiveService, error) {
	st, err := gormstore.NewGormStore(cfg.Live.StateDB)
	if err != nil {
		return nil, fmt.Errorf("初始化 live 状态库失败: %w", err)
	}
	key := gormstore.StateKey(cfg.Market.Symbol, cfg.Strategy.Name)
	eng, err := engine.FromConfig(cfg, cfg.Risk.InitialBalance,
		engine.JournalObserver{Prefix: "live"},
		gormstore.Observer{Store: st, Key: key, Timeout: observerTimeout},
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	br := circuit.New("live-fetch", breakerThreshold, breakerCooldown)
	br.OnStateChange(func(name string, from, to circuit.State) {
		logger.Warnf("[live] breaker %s: %s -> %s", name, from, to)
		if tn != nil && to == circuit.StateOpen {
			_ = tn.SendText(fmt.Sprintf("⚠️ %s 行情拉取连续失败，暂停 %s", cfg.Market.Symbol, breakerCooldown))
		}
	})
	runner, err := live.NewRunner(live.Options{
		Config:   cfg,
		Source:   src,
		Engine:   eng,
		Store:    st,
		StateKey: key,
		Notifier: tn,
		Breaker:  br,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := runner.Restore(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("恢复 live 状态失败: %w", err)
	}
	ls := &LiveService{
		runner: runner,
		store:  st,
		key:    key,
		router: livehttp.NewRouter(runner, st, key),
	}
	if configPath != "" {
		w, err := config.Watch(configPath)
		if err != nil {
			logger.Warnf("[live] 配置热更新不可用: %v", err)
		} else {
			w.Subscribe(func(s config.Snapshot) {
				runner.ApplyConfig(s.Config)
			})
			ls.watcher = w
		}
	}
	return ls, nil
}

// Run 启动轮询，直到 ctx 取消。
func (s *LiveService) Run(ctx context.Context) error {
	if s == nil || s.runner == nil {
		return fmt.Errorf("live service not initialized")
	}
	return s.runner.Run(ctx)
}

func (s *LiveService) Runner() *live.Runner {
	if s == nil {
		return nil
	}
	return s.runner
}

func (s *LiveService) Close() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		logger.Warnf("[live] 关闭状态库失败: %v", err)
	}
}
