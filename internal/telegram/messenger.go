package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/queue"
)

// Messenger sends outbound messages through the Telegram bot API. It
// implements queue.Messenger, splitting long texts into limit-sized parts.
type Messenger struct {
	bot *bot.Bot
	log *slog.Logger
}

// NewMessenger wraps a bot instance as the outbound messenger.
func NewMessenger(b *bot.Bot, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{
		bot: b,
		log: logger.With("component", "messenger"),
	}
}

// Send delivers text to a chat, splitting messages over the Telegram limit
// at safe boundaries. The returned reference identifies the last part sent.
func (m *Messenger) Send(ctx context.Context, chatID int64, text string) (queue.MessageRef, error) {
	var ref queue.MessageRef
	for _, part := range SplitMessage(text, messageLimit) {
		msg, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   part,
		})
		if err != nil {
			return queue.MessageRef{}, fmt.Errorf("failed to send message: %w", err)
		}
		ref = queue.MessageRef{ChatID: chatID, MessageID: msg.ID}
	}
	return ref, nil
}

// Edit replaces the text of a previously sent message.
func (m *Messenger) Edit(ctx context.Context, ref queue.MessageRef, text string) error {
	parts := SplitMessage(text, messageLimit)
	if _, err := m.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
		Text:      parts[0],
	}); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	// Overflow beyond the first part goes out as follow-up messages.
	for _, part := range parts[1:] {
		if _, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: ref.ChatID, Text: part}); err != nil {
			return fmt.Errorf("failed to send edit overflow: %w", err)
		}
	}
	return nil
}

// Typing shows the typing indicator. Failures are logged, not returned;
// the indicator is cosmetic.
func (m *Messenger) Typing(ctx context.Context, chatID int64) {
	_, err := m.bot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	if err != nil {
		m.log.DebugContext(ctx, "Typing action failed", "chat_id", chatID, "error", err)
	}
}
