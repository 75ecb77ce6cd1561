package app

import (
	"context"

	"lesson_reminder_bot/internal/domain/chat"
	domainTelegram "lesson_reminder_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// sentMessage identifies a delivered message so it can be retracted later.
type sentMessage struct {
	ChatID    int64
	MessageID int
}

// broadcaster fans a message out to registered chats, one at a time.
type broadcaster struct {
	chats  chat.Repository
	client domainTelegram.Client
	logger *logrus.Entry
}

// recipients returns every registered chat plus owner when owner is not registered.
// A failing registry lookup degrades to the owner alone.
func (b *broadcaster) recipients(ctx context.Context, owner int64) []int64 {
	regs, err := b.chats.ListAll(ctx)
	if err != nil {
		b.logger.WithError(err).WithField("chat_id", owner).Error("Failed to list registered chats, falling back to owner")
		if owner == 0 {
			return nil
		}
		return []int64{owner}
	}
	ids := make([]int64, 0, len(regs)+1)
	seen := make(map[int64]bool, len(regs)+1)
	for _, r := range regs {
		if seen[r.ChatID] {
			continue
		}
		seen[r.ChatID] = true
		ids = append(ids, r.ChatID)
	}
	if owner != 0 && !seen[owner] {
		ids = append(ids, owner)
	}
	return ids
}

// others returns every registered chat except the given one.
func (b *broadcaster) others(ctx context.Context, except int64) []int64 {
	regs, err := b.chats.ListAll(ctx)
	if err != nil {
		b.logger.WithError(err).Error("Failed to list registered chats")
		return nil
	}
	ids := make([]int64, 0, len(regs))
	for _, r := range regs {
		if r.ChatID != except {
			ids = append(ids, r.ChatID)
		}
	}
	return ids
}

// send delivers text to each chat in order. Failures are logged and skipped.
func (b *broadcaster) send(ctx context.Context, chatIDs []int64, text string, options *telebot.SendOptions, logCtx *logrus.Entry) []sentMessage {
	sent := make([]sentMessage, 0, len(chatIDs))
	for _, chatID := range chatIDs {
		msgID, err := b.client.SendMessage(ctx, chatID, text, options)
		if err != nil {
			logCtx.WithError(err).WithField("recipient", chatID).Warn("Failed to deliver message")
			continue
		}
		sent = append(sent, sentMessage{ChatID: chatID, MessageID: msgID})
	}
	return sent
}

// retract deletes messages, logging and swallowing failures.
func (b *broadcaster) retract(ctx context.Context, messages []sentMessage, logCtx *logrus.Entry) {
	for _, m := range messages {
		if err := b.client.DeleteMessage(ctx, m.ChatID, m.MessageID); err != nil {
			logCtx.WithError(err).WithFields(logrus.Fields{
				"recipient":  m.ChatID,
				"message_id": m.MessageID,
			}).Debug("Failed to delete message")
		}
	}
}

func htmlOptions() *telebot.SendOptions {
	return &telebot.SendOptions{ParseMode: telebot.ModeHTML}
}
