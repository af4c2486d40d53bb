package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSendText(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "42", payload["chat_id"])
		assert.Equal(t, "hello", payload["text"])
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	tg.Backoff = func(int) time.Duration { return 0 }
	require.NoError(t, tg.SendText("hello"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTelegramFailures(t *testing.T) {
	t.Run("missing config", func(t *testing.T) {
		assert.Error(t, NewTelegram("", "1").SendText("x"))
	})
	t.Run("gives up after retries", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		tg := NewTelegram("T", "1")
		tg.BaseURL = srv.URL
		tg.Backoff = nil
		err := tg.SendText("x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
		assert.Equal(t, int32(telegramAttempts), atomic.LoadInt32(&calls))
	})
	t.Run("client error is final", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked"}`))
		}))
		defer srv.Close()
		tg := NewTelegram("T", "1")
		tg.BaseURL = srv.URL
		err := tg.SendText("x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bot was kicked")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
	t.Run("honours retry_after", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"parameters":{"retry_after":0}}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()
		tg := NewTelegram("T", "1")
		tg.BaseURL = srv.URL
		tg.Backoff = func(int) time.Duration { return 0 }
		require.NoError(t, tg.SendText("x"))
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}

func TestStructuredMessageRender(t *testing.T) {
	msg := StructuredMessage{
		Icon:      "✅",
		Title:     "Take Profit BTCUSDT",
		Footer:    "balance $10200.00",
		Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	msg.Add("entry", "%.2f", 100.0).Add("exit", "%.2f", 102.0).Add("quality", "")
	msg.Fields = append(msg.Fields, Field{Label: "empty", Value: " "})

	out := msg.RenderMarkdown()
	assert.True(t, strings.HasPrefix(out, "✅ Take Profit BTCUSDT"))
	assert.Contains(t, out, "entry: 100.00\nexit:  102.00")
	assert.NotContains(t, out, "quality")
	assert.NotContains(t, out, "empty")
	assert.Contains(t, out, "balance $10200.00\nTime: 2024-01-02 10:00:00 UTC")
}

func TestStructuredMessageTruncates(t *testing.T) {
	msg := StructuredMessage{Title: "long"}
	msg.Add("", "%s", strings.Repeat("x", maxMessageLen+100))
	out := msg.RenderMarkdown()
	assert.Len(t, out, maxMessageLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
}
