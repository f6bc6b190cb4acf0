package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/queue"
)

type genHandler struct {
	deps HandlerDeps
}

// NewGenHandler returns a handler for the /gen command: raw text
// completion with no character context, useful for testing the backend.
func NewGenHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return genHandler{deps}.Handle
}

func (h genHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "gen")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	promptText := commandArgs(msg.Text)
	if promptText == "" {
		reply(ctx, b, log, chatID, deps.Config.Messages.ProvideArgument)
		return
	}

	deps.Queue.Enqueue(queue.NewGenericGenerationRequest(chatID, msg.From.ID, promptText))
	reply(ctx, b, log, chatID, deps.Config.Messages.Queued)
	log.InfoContext(ctx, "Raw generation queued", "chat_id", chatID)
}
