package backtesthttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"scalper/internal/backtest"
	livehttp "scalper/internal/transport/http/live"

	"github.com/gin-gonic/gin"
)

const (
	defaultAddr     = ":9991"
	shutdownTimeout = 5 * time.Second
)

// Config 描述 HTTP Server 的依赖，Live 为空时不挂载 /api/live。
type Config struct {
	Addr      string
	Svc       *backtest.Service
	Simulator *backtest.Simulator
	Results   *backtest.ResultStore
	Live      *livehttp.Router
}

// Server 聚合回测数据、回放结果与 live 状态查询。
type Server struct {
	addr    string
	engine  *gin.Engine
	data    dataHandlers
	runs    runHandlers
	liveAPI *livehttp.Router
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Svc == nil {
		return nil, errors.New("service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	results := cfg.Results
	if results == nil && cfg.Simulator != nil {
		results = cfg.Simulator.Results()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), livehttp.RequestLogger())

	s := &Server{
		addr:    cfg.Addr,
		engine:  engine,
		data:    dataHandlers{svc: cfg.Svc},
		runs:    runHandlers{sim: cfg.Simulator, results: results},
		liveAPI: cfg.Live,
	}
	s.mount()
	return s, nil
}

func (s *Server) mount() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api/backtest")
	s.data.register(api)
	s.runs.register(api.Group("/runs"))

	if s.liveAPI != nil {
		s.liveAPI.Register(s.engine.Group("/api/live"))
	}
}

// Handler 暴露底层路由。
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Addr() string { return s.addr }

// Start 阻塞监听，ctx 取消后优雅关闭。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	done := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return err
	}
	return <-done
}
