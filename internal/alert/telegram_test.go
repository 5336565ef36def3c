package alert

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifier(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		if got.Text == "fail" {
			_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "42", srv.URL+"/", time.Second)
	require.NoError(t, n.Notify(context.Background(), "hello"))
	require.Equal(t, "/bottok/sendMessage", path)
	require.Equal(t, "42", got.ChatID)
	require.Equal(t, "hello", got.Text)
	require.True(t, got.DisableWebPagePreview)

	err := n.Notify(context.Background(), "fail")
	require.ErrorContains(t, err, "chat not found")
}

func TestTelegramNotifierRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "42", srv.URL, time.Second)
	start := time.Now()
	require.NoError(t, n.Notify(context.Background(), "hello"))
	require.EqualValues(t, 2, hits.Load())
	require.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestTelegramNotifierRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "42", srv.URL, time.Second)
	n.retryInterval = time.Millisecond
	err := n.Notify(context.Background(), "hello")
	require.ErrorContains(t, err, "telegram status=502")
	require.EqualValues(t, telegramMaxTries, hits.Load())
}

func TestTelegramNotifierDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message text is empty"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "42", srv.URL, time.Second)
	err := n.Notify(context.Background(), "")
	require.ErrorContains(t, err, "message text is empty")
	require.EqualValues(t, 1, hits.Load())
}
