package push

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender 向机器人通道投递一条消息。
type Sender interface {
	Send(botToken, chatID, text string) error
}

// TelegramSender 通过 Telegram Bot API 发送消息。
type TelegramSender struct {
	baseURL    string
	httpClient *http.Client
}

// NewTelegramSender 创建 Telegram 推送发送器。
func NewTelegramSender() *TelegramSender {
	return &TelegramSender{
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// sendMessageRequest Bot API sendMessage 请求体。
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// sendMessageResponse Bot API 响应体（只关心成败）。
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send 调用 sendMessage 投递一条 HTML 格式消息。
func (t *TelegramSender) Send(botToken, chatID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, botToken)
	resp, err := t.httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var result sendMessageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("bot api returned status %d", resp.StatusCode)
	}
	if !result.OK {
		return fmt.Errorf("bot api error: %s", result.Description)
	}

	return nil
}
