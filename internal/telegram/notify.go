// Package telegram delivers operator notifications through a Telegram bot.
package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client sends messages to a fixed operator chat.
type Client struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewClient creates a Telegram client bound to one chat.
func NewClient(token string, chatID int64) (*Client, error) {
	return NewClientWithEndpoint(token, chatID, tgbotapi.APIEndpoint)
}

// NewClientWithEndpoint creates a client against a custom API endpoint.
// Used in tests.
func NewClientWithEndpoint(token string, chatID int64, endpoint string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{bot: bot, chatID: chatID}, nil
}

// SendMessage sends a Markdown-formatted message to the operator chat.
func (c *Client) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "Markdown"
	_, err := c.bot.Send(msg)
	return err
}

// Notify sends a one-off message without requiring a running client.
func Notify(token string, chatID int64, text string) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 || strings.TrimSpace(text) == "" {
		return
	}

	client, err := NewClient(token, chatID)
	if err != nil {
		return
	}
	_ = client.SendMessage(text)
}
