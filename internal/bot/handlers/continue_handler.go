package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type continueHandler struct {
	deps HandlerDeps
}

// NewContinueHandler returns a handler for the /continue command, which
// asks the active characters to keep talking without new user input.
func NewContinueHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return continueHandler{deps}.Handle
}

func (h continueHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "continue")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	// Continuations count against the same per-author pending limit as
	// ordinary chat turns.
	if enqueueChatTurn(ctx, b, h.deps, log, msg, "", true) {
		reply(ctx, b, log, msg.Chat.ID, h.deps.Config.Messages.Queued)
		log.InfoContext(ctx, "Continuation queued", "chat_id", msg.Chat.ID)
	}
}
