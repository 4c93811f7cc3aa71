package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
	ProviderID() string
}

// BotAPISender posts sendMessage calls to the Telegram Bot API. The base URL
// is overridable so tests can point it at a local server.
type BotAPISender struct {
	base  string
	token string
	http  *http.Client
}

func NewBotAPISender(base, token string) *BotAPISender {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &BotAPISender{
		base:  base,
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *BotAPISender) ProviderID() string {
	return "telegram-bot-api"
}

func (s *BotAPISender) Send(ctx context.Context, chatID int64, text string) error {
	if s.token == "" {
		return errors.New("telegram bot token not configured")
	}
	raw, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.base, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram api returned %d", resp.StatusCode)
	}
	return nil
}

// NoopSender swallows messages. Dev and test default when no token is set.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "telegram-noop"
}

func (s *NoopSender) Send(_ context.Context, _ int64, _ string) error {
	return nil
}
