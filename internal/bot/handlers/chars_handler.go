package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type charsHandler struct {
	deps HandlerDeps
}

// NewCharsHandler returns a handler for the /chars command, listing the
// characters active in the room. Read-only, so it answers synchronously.
func NewCharsHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return charsHandler{deps}.Handle
}

func (h charsHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "chars")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	active, err := deps.Store.ActiveCharacters(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load active characters", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, deps.Config.Messages.GeneralError)
		return
	}
	if len(active) == 0 {
		reply(ctx, b, log, chatID, deps.Config.Messages.NoActiveCharacter)
		return
	}

	var sb strings.Builder
	sb.WriteString("Active characters:")
	for _, c := range active {
		sb.WriteString("\n• " + c.Name + " (" + c.Filename + ")")
		if c.Scenario.Valid && c.Scenario.String != "" {
			sb.WriteString(" [scenario set]")
		}
	}
	reply(ctx, b, log, chatID, sb.String())
}
