package handlers

import (
	"context"
	"log/slog"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/queue"
	"troupe/internal/roster"
)

type chatHandler struct {
	deps HandlerDeps
}

// NewChatHandler creates the default message handler. It decides whether a
// message deserves character replies and, if so, enqueues a chat turn.
func NewChatHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return chatHandler{deps}.Handle
}

func (h chatHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "chat")

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}
	if strings.HasPrefix(msg.Text, "/") {
		return
	}
	if msg.From.IsBot {
		return
	}

	chatID := msg.Chat.ID
	if !h.shouldRespond(ctx, chatID, msg.Text) {
		log.DebugContext(ctx, "No trigger in message, staying silent", "chat_id", chatID)
		return
	}

	enqueueChatTurn(ctx, b, deps, log, msg, msg.Text, false)
}

// shouldRespond reports whether a message triggers character replies: the
// room is in free-to-speak mode, the bot itself is addressed, or an active
// character is named.
func (h chatHandler) shouldRespond(ctx context.Context, chatID int64, text string) bool {
	deps := h.deps
	log := deps.Logger.With("handler", "chat")

	free, err := deps.Store.FreeToSpeak(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read free-to-speak flag", "error", err, "chat_id", chatID)
	} else if free {
		return true
	}

	if info := deps.Config.Telegram.BotInfo; info != nil && info.Username != "" {
		if strings.Contains(strings.ToLower(text), "@"+strings.ToLower(info.Username)) {
			return true
		}
	}

	active, err := deps.Store.ActiveCharacters(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load active characters", "error", err, "chat_id", chatID)
		return false
	}
	for _, c := range active {
		if roster.Mentioned(c.Name, text) {
			return true
		}
	}
	return false
}

// enqueueChatTurn applies per-author admission control and enqueues a chat
// generation request, reporting whether the turn was accepted. Rejections
// are reported synchronously; accepted turns answer through the dispatcher.
func enqueueChatTurn(ctx context.Context, b *tgbot.Bot, deps HandlerDeps, log *slog.Logger, msg *models.Message, text string, continuation bool) bool {
	chatID := msg.Chat.ID
	authorID := msg.From.ID

	req := queue.NewChatGenerationRequest(chatID, authorID, senderName(msg.From), text, continuation)
	if !admitChatTurn(deps.Queue, req, deps.Config.Chat.MaxPendingPerAuthor) {
		log.WarnContext(ctx, "Rejecting chat turn, author over pending limit", "chat_id", chatID, "author_id", authorID)
		if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: deps.Config.Messages.TooManyPending}); err != nil {
			log.ErrorContext(ctx, "Failed to send rejection", "error", err, "chat_id", chatID)
		}
		return false
	}
	return true
}

// admitChatTurn enqueues the chat turn unless its author already has more
// pending chat turns than the limit allows. An author sitting exactly at
// the limit still gets this turn in; only the one after that is turned
// away. A limit of zero disables the check.
func admitChatTurn(q *queue.Queue, req *queue.ChatGenerationRequest, limit int) bool {
	if limit > 0 && q.PendingChatTurns(req.AuthorID()) > limit {
		return false
	}
	q.Enqueue(req)
	return true
}
