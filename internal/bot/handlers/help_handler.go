package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const helpText = `Commands:
/activate <file> [| scenario] - activate a character, with an optional scenario
/deactivate <file> - deactivate a character
/chars - list active characters
/scenario <text> - set the chat scenario (empty to clear)
/nick <name> - set your display name for this chat
/continue - let the characters keep talking
/speak - toggle replying to every message (admin)
/gen <prompt> - raw completion without character context (admin)
/clear [history|characters|scenario|charscenarios|greet|all] - reset chat state (admin)
/help - this message

Mention a character by name (or me) to get a reply.`

type helpHandler struct {
	deps HandlerDeps
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return helpHandler{deps}.Handle
}

func (h helpHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "help")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	reply(ctx, b, log, update.Message.Chat.ID, helpText)
}
