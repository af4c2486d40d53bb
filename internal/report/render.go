package report

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Snapshotter 用 headless Chrome 把报告 HTML 截成 PNG。
type Snapshotter struct {
	Width   int
	Height  int
	Settle  time.Duration // 等待 echarts 动画结束
	Timeout time.Duration

	probeOnce sync.Once
	probeErr  error
}

// NewSnapshotter 返回与报告布局尺寸一致的截图器。
func NewSnapshotter() *Snapshotter {
	return &Snapshotter{
		Width:   chartWidthPx,
		Height:  PageHeight,
		Settle:  1500 * time.Millisecond,
		Timeout: 20 * time.Second,
	}
}

var defaultSnapshotter = NewSnapshotter()

func (s *Snapshotter) browser(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.NoSandbox, chromedp.DisableGPU)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

// Probe 检查本机能否启动 Chrome，结果在进程内缓存。
func (s *Snapshotter) Probe(ctx context.Context) error {
	s.probeOnce.Do(func() {
		bctx, cancel := s.browser(ctx)
		defer cancel()
		s.probeErr = chromedp.Run(bctx)
	})
	return s.probeErr
}

// Capture 加载 html 并返回整页截图。
func (s *Snapshotter) Capture(ctx context.Context, html []byte) ([]byte, error) {
	if len(html) == 0 {
		return nil, errors.New("empty html")
	}
	if err := s.Probe(ctx); err != nil {
		return nil, err
	}
	bctx, cancel := s.browser(ctx)
	defer cancel()
	bctx, cancelTimeout := context.WithTimeout(bctx, s.Timeout)
	defer cancelTimeout()

	var shot []byte
	err := chromedp.Run(bctx,
		chromedp.EmulateViewport(int64(s.Width), int64(s.Height)),
		chromedp.Navigate("data:text/html;base64,"+base64.StdEncoding.EncodeToString(html)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.Settle),
		chromedp.FullScreenshot(&shot, 0),
	)
	return shot, err
}

// EnsureHeadlessAvailable 探测默认截图器。
func EnsureHeadlessAvailable(ctx context.Context) error {
	return defaultSnapshotter.Probe(ctx)
}

// WritePNG 渲染报告并把截图写入 path。
func WritePNG(ctx context.Context, path string, in Input) error {
	html, err := BuildHTML(in)
	if err != nil {
		return err
	}
	png, err := defaultSnapshotter.Capture(ctx, html)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}
