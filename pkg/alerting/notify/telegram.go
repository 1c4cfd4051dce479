package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sentinelops/alerting-engine/pkg/alerting"
)

// TelegramTransport delivers alert summaries through the Telegram bot API
type TelegramTransport struct {
	botToken string
	chatID   string
	baseURL  string
}

// NewTelegramTransport creates the Telegram transport
func NewTelegramTransport(settings alerting.TelegramSettings) *TelegramTransport {
	return &TelegramTransport{
		botToken: settings.BotToken,
		chatID:   settings.ChatID,
		baseURL:  "https://api.telegram.org",
	}
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts the summary to the configured chat
func (t *TelegramTransport) Send(ctx context.Context, summary alerting.AlertSummary) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram transport is not configured")
	}

	payload, err := json.Marshal(telegramMessage{ChatID: t.chatID, Text: formatText(summary)})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post telegram message: %w", err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API rejected message: %s", result.Description)
	}
	return nil
}
