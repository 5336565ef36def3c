package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	telegramMaxText        = 4096
	telegramMaxTries       = 3
)

// TelegramNotifier posts alerts with the Bot API sendMessage method.
// Rate limiting (429) and server errors are retried; other refusals are final.
type TelegramNotifier struct {
	endpoint      string
	chatID        string
	client        *http.Client
	retryInterval time.Duration
}

func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	return &TelegramNotifier{
		endpoint:      baseURL + "/bot" + botToken + "/sendMessage",
		chatID:        chatID,
		client:        &http.Client{Timeout: timeout},
		retryInterval: 250 * time.Millisecond,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *TelegramNotifier) Notify(ctx context.Context, msg string) error {
	if t == nil {
		return nil
	}
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  clip(msg, telegramMaxText),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode telegram message: %w", err)
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.retryInterval
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, t.post(ctx, body)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(telegramMaxTries))
	return err
}

func (t *TelegramNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed sendMessageResponse
	decoded := json.Unmarshal(raw, &parsed) == nil

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if decoded && parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
			return backoff.RetryAfter(parsed.Parameters.RetryAfter)
		}
		return fmt.Errorf("telegram rate limited: %s", strings.TrimSpace(string(raw)))
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("telegram status=%d", resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return backoff.Permanent(fmt.Errorf("telegram status=%d: %s", resp.StatusCode, describe(parsed, raw)))
	case decoded && !parsed.OK:
		return backoff.Permanent(fmt.Errorf("telegram api error: %s", describe(parsed, raw)))
	}
	return nil
}

func describe(parsed sendMessageResponse, raw []byte) string {
	if parsed.Description != "" {
		return parsed.Description
	}
	return strings.TrimSpace(string(raw))
}
