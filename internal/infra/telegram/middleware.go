package telegram

import (
	"context"

	"gopkg.in/telebot.v3"
)

// registerChat records the chat of every incoming update so summaries and
// report prompts reach chats that never sent /start.
func (h *Handlers) registerChat(ctx context.Context) telebot.MiddlewareFunc {
	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			if c.Chat() != nil {
				name := ""
				if c.Sender() != nil {
					name = c.Sender().FirstName
				}
				if _, err := h.lessons.RegisterChat(ctx, c.Chat().ID, name); err != nil {
					h.handlerLogger(c, "register_chat").WithError(err).Warn("Failed to record chat")
				}
			}
			return next(c)
		}
	}
}
