package handlers

import (
	"context"
	"log/slog"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// reply sends a plain text response, logging failures.
func reply(ctx context.Context, b *tgbot.Bot, log *slog.Logger, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}

// commandArgs strips the leading /command (and an optional @botname suffix)
// from a message, returning the trimmed argument string.
func commandArgs(text string) string {
	if !strings.HasPrefix(text, "/") {
		return strings.TrimSpace(text)
	}
	parts := strings.SplitN(text, " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// senderName picks a human-readable name for a message sender.
func senderName(from *models.User) string {
	if from == nil {
		return "Unknown"
	}
	if from.Username != "" {
		return from.Username
	}
	return from.FirstName
}

// optional returns a pointer to s, or nil when s is empty. Store setters
// take nil to mean "clear".
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
