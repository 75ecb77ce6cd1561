// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"strconv"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Telegram allows about 30 messages per second per bot; stay below it.
const defaultSendRate = 20

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
// Outgoing calls share one token bucket.
type TelebotAdapter struct {
	bot     *telebot.Bot
	limiter *rate.Limiter
}

func NewTelebotAdapter(b *telebot.Bot, perSecond float64) *TelebotAdapter {
	if perSecond <= 0 {
		perSecond = defaultSendRate
	}
	return &TelebotAdapter{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// SendMessage sends a text message to the chat and returns its message id.
func (tba *TelebotAdapter) SendMessage(ctx context.Context, chatID int64, text string, options *telebot.SendOptions) (int, error) {
	if err := tba.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	if options == nil {
		options = &telebot.SendOptions{}
	}

	msg, err := tba.bot.Send(&telebot.Chat{ID: chatID}, text, options)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// DeleteMessage removes a previously sent message.
func (tba *TelebotAdapter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := tba.limiter.Wait(ctx); err != nil {
		return err
	}
	return tba.bot.Delete(&telebot.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	})
}
