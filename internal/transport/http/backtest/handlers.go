package backtesthttp

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"scalper/internal/backtest"

	"github.com/gin-gonic/gin"
)

var (
	errMissingSeries = errors.New("symbol/timeframe 必填")
	errNoSimulator   = errors.New("模拟器未启用")
	errNoResults     = errors.New("结果存储未启用")
)

// storeErr 标记存储层故障，对外返回 500。
type storeErr struct{ error }

func (e storeErr) Unwrap() error { return e.error }

func internal(err error) error {
	if err == nil {
		return nil
	}
	return storeErr{err}
}

// statusOf 把领域错误映射为 HTTP 状态码。
func statusOf(err error) int {
	var se storeErr
	switch {
	case errors.As(err, &se):
		return http.StatusInternalServerError
	case errors.Is(err, backtest.ErrRunNotFound), errors.Is(err, backtest.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoSimulator), errors.Is(err, errNoResults):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

// reply 输出 {key: v}，err 非空时按 statusOf 返回错误。
func reply(c *gin.Context, code int, key string, v any, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(code, gin.H{key: v})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s 非法: %q", key, raw)
	}
	return v, nil
}

func queryInt64(c *gin.Context, key string) int64 {
	v, _ := strconv.ParseInt(c.Query(key), 10, 64)
	return v
}

func series(c *gin.Context) (string, string, error) {
	symbol, tf := c.Query("symbol"), c.Query("timeframe")
	if symbol == "" || tf == "" {
		return "", "", errMissingSeries
	}
	return symbol, tf, nil
}

// dataHandlers: K 线拉取任务与本地缓存查询。
type dataHandlers struct {
	svc *backtest.Service
}

func (h dataHandlers) register(g *gin.RouterGroup) {
	g.POST("/fetch", h.submit)
	g.GET("/fetch/:id", h.job)
	g.GET("/jobs", h.jobs)
	g.GET("/data", h.manifest)
	g.GET("/candles", h.candles)
}

type fetchBody struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe" binding:"required"`
	StartTS   int64  `json:"start_ts" binding:"required"`
	EndTS     int64  `json:"end_ts"`
}

func (h dataHandlers) submit(c *gin.Context) {
	var body fetchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, err)
		return
	}
	job, err := h.svc.SubmitFetch(backtest.FetchParams{
		Exchange:  body.Exchange,
		Symbol:    body.Symbol,
		Timeframe: body.Timeframe,
		Start:     body.StartTS,
		End:       body.EndTS,
	})
	reply(c, http.StatusAccepted, "job", job, err)
}

func (h dataHandlers) job(c *gin.Context) {
	job, err := h.svc.JobSnapshot(c.Param("id"))
	reply(c, http.StatusOK, "job", job, err)
}

func (h dataHandlers) jobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.svc.JobsSnapshot()})
}

func (h dataHandlers) manifest(c *gin.Context) {
	symbol, tf, err := series(c)
	if err != nil {
		fail(c, err)
		return
	}
	info, err := h.svc.ManifestInfo(c.Request.Context(), symbol, tf)
	reply(c, http.StatusOK, "manifest", info, err)
}

func (h dataHandlers) candles(c *gin.Context) {
	symbol, tf, err := series(c)
	if err != nil {
		fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 200)
	if err != nil {
		fail(c, err)
		return
	}
	data, err := h.svc.QueryCandles(c.Request.Context(), symbol, tf, queryInt64(c, "start_ts"), queryInt64(c, "end_ts"), limit)
	reply(c, http.StatusOK, "candles", data, err)
}

// runHandlers: 回放任务及其落库结果。
type runHandlers struct {
	sim     *backtest.Simulator
	results *backtest.ResultStore
}

func (h runHandlers) register(g *gin.RouterGroup) {
	g.POST("", h.start)
	g.GET("", h.list)

	one := g.Group("/:id", h.needResults)
	one.GET("", h.detail)
	one.GET("/trades", h.trades)
	one.GET("/snapshots", h.snapshots)
	one.GET("/events", h.events)
}

func (h runHandlers) needResults(c *gin.Context) {
	if h.results == nil {
		fail(c, errNoResults)
		c.Abort()
		return
	}
	c.Next()
}

func (h runHandlers) start(c *gin.Context) {
	if h.sim == nil {
		fail(c, errNoSimulator)
		return
	}
	var req backtest.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	run, err := h.sim.StartRun(req)
	reply(c, http.StatusAccepted, "run", run, err)
}

func (h runHandlers) list(c *gin.Context) {
	if h.results == nil {
		fail(c, errNoResults)
		return
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		fail(c, err)
		return
	}
	runs, err := h.results.ListRuns(c.Request.Context(), limit)
	reply(c, http.StatusOK, "runs", runs, internal(err))
}

func (h runHandlers) detail(c *gin.Context) {
	run, err := h.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil && !errors.Is(err, backtest.ErrRunNotFound) {
		err = internal(err)
	}
	reply(c, http.StatusOK, "run", run, err)
}

func (h runHandlers) trades(c *gin.Context) {
	limit, err := queryInt(c, "limit", 200)
	if err != nil {
		fail(c, err)
		return
	}
	trades, err := h.results.ListTrades(c.Request.Context(), c.Param("id"), limit)
	reply(c, http.StatusOK, "trades", trades, internal(err))
}

func (h runHandlers) snapshots(c *gin.Context) {
	limit, err := queryInt(c, "limit", 400)
	if err != nil {
		fail(c, err)
		return
	}
	snaps, err := h.results.ListSnapshots(c.Request.Context(), c.Param("id"), limit)
	reply(c, http.StatusOK, "snapshots", snaps, internal(err))
}

func (h runHandlers) events(c *gin.Context) {
	limit, err := queryInt(c, "limit", 200)
	if err != nil {
		fail(c, err)
		return
	}
	events, err := h.results.ListEvents(c.Request.Context(), c.Param("id"), c.Query("kind"), limit)
	reply(c, http.StatusOK, "events", events, internal(err))
}
