package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	telegramAttempts   = 3
	telegramTimeout    = 15 * time.Second
)

// Telegram 把成交、平仓与回测结果推送到指定群/频道。
type Telegram struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
	// Backoff 返回第 n 次失败后的等待时间；服务端给出 retry_after 时以其为准。
	Backoff func(attempt int) time.Duration
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  defaultTelegramAPI,
		Client:   &http.Client{Timeout: telegramTimeout},
		Backoff:  func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
	}
}

// sendError 是一次失败的 sendMessage；retryable 为 false 时不再重试。
type sendError struct {
	status     int
	desc       string
	retryAfter time.Duration
	retryable  bool
}

func (e *sendError) Error() string {
	if e.desc == "" {
		return fmt.Sprintf("telegram status=%d", e.status)
	}
	return fmt.Sprintf("telegram status=%d: %s", e.status, e.desc)
}

// SendText 发送 Markdown 文本；5xx、429 与网络错误最多重试 telegramAttempts 次。
func (t *Telegram) SendText(text string) error {
	return t.SendTextContext(context.Background(), text)
}

func (t *Telegram) SendTextContext(ctx context.Context, text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return errors.New("telegram 配置不完整")
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(t.BaseURL, "/")
	if endpoint == "" {
		endpoint = defaultTelegramAPI
	}
	endpoint += "/bot" + t.BotToken + "/sendMessage"

	var lastErr error
	for attempt := 0; attempt < telegramAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, t.wait(attempt, lastErr)); err != nil {
				return err
			}
		}
		lastErr = t.post(ctx, endpoint, body)
		if lastErr == nil {
			return nil
		}
		var se *sendError
		if errors.As(lastErr, &se) && !se.retryable {
			return lastErr
		}
	}
	return lastErr
}

func (t *Telegram) wait(attempt int, lastErr error) time.Duration {
	var se *sendError
	if errors.As(lastErr, &se) && se.retryAfter > 0 {
		return se.retryAfter
	}
	if t.Backoff == nil {
		return 0
	}
	return t.Backoff(attempt)
}

func (t *Telegram) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: telegramTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if resp.StatusCode/100 == 2 {
		return nil
	}
	res := gjson.ParseBytes(raw)
	return &sendError{
		status:     resp.StatusCode,
		desc:       res.Get("description").String(),
		retryAfter: time.Duration(res.Get("parameters.retry_after").Int()) * time.Second,
		retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
