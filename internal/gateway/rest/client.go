// Package rest 收拢行情源共用的 HTTP 客户端构造与请求统计。
package rest

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"scalper/internal/market"
)

const DefaultTimeout = 15 * time.Second

// NewHTTPClient 返回带超时的 client；proxy 非空时走该代理。
func NewHTTPClient(timeout time.Duration, proxy string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}
	proxy = strings.TrimSpace(proxy)
	if proxy == "" {
		return client, nil
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil || proxyURL.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q", proxy)
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("http.DefaultTransport is not *http.Transport")
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	client.Transport = tr
	return client, nil
}

// BaseURL 去掉首尾空白与末尾斜杠，空值回退到 fallback。
func BaseURL(raw, fallback string) string {
	if v := strings.TrimRight(strings.TrimSpace(raw), "/"); v != "" {
		return v
	}
	return fallback
}

// Stats 记录请求次数与最近错误，可安全并发使用。
type Stats struct {
	mu sync.Mutex
	s  market.SourceStats
}

func (st *Stats) Observe(err error, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Requests++
	if err != nil {
		st.s.Failures++
		st.s.LastError = err.Error()
		return
	}
	st.s.LastError = ""
	st.s.LastFetchAt = at.UnixMilli()
}

func (st *Stats) Snapshot() market.SourceStats {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}
