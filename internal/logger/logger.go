// Package logger 是进程级日志入口：slog 文本/JSON handler 包装成 printf 风格调用。
// 形如 "[live] ..." 的前缀会被拆成 component 属性。
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	level  slog.LevelVar
	active atomic.Pointer[slog.Logger]

	mu     sync.Mutex
	output io.Writer = os.Stdout
	asJSON bool
)

func init() {
	rebuild()
}

// rebuild 需在持有 mu 或初始化阶段调用。
func rebuild() {
	opts := &slog.HandlerOptions{Level: &level}
	var h slog.Handler
	if asJSON {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	active.Store(slog.New(h))
}

// SetOutput 替换输出；nil 恢复为 stdout。
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

// SetFormat 在 text（默认）与 json 之间切换。
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	asJSON = strings.EqualFold(strings.TrimSpace(format), "json")
	rebuild()
}

func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

func logf(lvl slog.Level, format string, v ...any) {
	l := active.Load()
	if !l.Enabled(context.Background(), lvl) {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if comp, rest, ok := component(msg); ok {
		l.Log(context.Background(), lvl, rest, slog.String("component", comp))
		return
	}
	l.Log(context.Background(), lvl, msg)
}

// component 拆出开头的 "[name] "。
func component(msg string) (string, string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", msg, false
	}
	end := strings.Index(msg, "]")
	if end <= 1 || strings.ContainsAny(msg[1:end], " \t") {
		return "", msg, false
	}
	return msg[1:end], strings.TrimSpace(msg[end+1:]), true
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }

func Infof(format string, v ...any) { logf(slog.LevelInfo, format, v...) }

func Warnf(format string, v ...any) { logf(slog.LevelWarn, format, v...) }

func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }

// InfoBlock 逐行输出多行文本（启动摘要、回测汇总），跳过空行。
func InfoBlock(block string) {
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		if strings.TrimSpace(line) != "" {
			Infof("%s", line)
		}
	}
}
