package notify

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TelegramChannel 通过 Bot API sendMessage 推送文本。
type TelegramChannel struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		BotToken: botToken,
		ChatID:   chatID,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramChannel) Send(text string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)
	data := url.Values{}
	data.Set("chat_id", t.ChatID)
	data.Set("text", text)

	resp, err := t.Client.PostForm(apiURL, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram sendMessage status %d", resp.StatusCode)
	}
	return nil
}

func (t *TelegramChannel) Name() string { return "telegram" }
