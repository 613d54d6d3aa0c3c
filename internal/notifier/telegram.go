package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Telegram posts alerts to a single chat. Mail recipients are ignored.
type Telegram struct {
	Token  string
	ChatID string
	HTTP   *http.Client
	// BaseURL defaults to the public Bot API endpoint.
	BaseURL string
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: "https://api.telegram.org",
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

func (t *Telegram) Notify(ctx context.Context, _ []string, _, subject, body string) error {
	if !t.Enabled() {
		return fmt.Errorf("telegram not configured")
	}
	payload := map[string]any{"chat_id": t.ChatID, "text": subject + "\n\n" + body, "disable_web_page_preview": true}
	b, _ := json.Marshal(payload)
	u := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}
