package livehttp

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"scalper/internal/engine"
	"scalper/internal/live"
	"scalper/internal/logger"
	"scalper/internal/store/gormstore"

	"github.com/gin-gonic/gin"
)

// StatusProvider 是 live.Runner 对外暴露的只读视图。
type StatusProvider interface {
	Status() live.Status
	Trades(limit int) []engine.ClosedTrade
}

// EventLister 读取持久化的 live 事件。
type EventLister interface {
	ListEvents(ctx context.Context, key string, limit int) ([]gormstore.Event, error)
}

// Router 注册 /api/live 下的查询接口。
type Router struct {
	status   StatusProvider
	events   EventLister
	stateKey string
}

func NewRouter(status StatusProvider, events EventLister, stateKey string) *Router {
	return &Router{status: status, events: events, stateKey: stateKey}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if r == nil || group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/trades", r.handleTrades)
	group.GET("/events", r.handleEvents)
}

func (r *Router) handleStatus(c *gin.Context) {
	if r.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live 未运行"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": r.status.Status()})
}

func (r *Router) handleTrades(c *gin.Context) {
	if r.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live 未运行"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": r.status.Trades(limit)})
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "事件存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	key := c.DefaultQuery("key", r.stateKey)
	events, err := r.events.ListEvents(c.Request.Context(), key, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// RequestLogger 以 debug 级别记录每个请求。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}
