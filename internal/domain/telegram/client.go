package telegram

import (
	"context"

	"gopkg.in/telebot.v3"
)

// Client defines an interface for sending and retracting messages via a Telegram bot.
// This keeps the application logic independent of the bot library.
type Client interface {
	// SendMessage delivers text to the chat and returns the new message id.
	SendMessage(ctx context.Context, chatID int64, text string, options *telebot.SendOptions) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}
