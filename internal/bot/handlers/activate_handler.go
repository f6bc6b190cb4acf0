package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/queue"
)

type activateHandler struct {
	deps HandlerDeps
}

// NewActivateHandler returns a handler for the /activate command.
// Usage: /activate <filename> [| scenario text]
func NewActivateHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return activateHandler{deps}.Handle
}

func (h activateHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "activate")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	args := commandArgs(msg.Text)
	if args == "" {
		reply(ctx, b, log, chatID, deps.Config.Messages.ProvideArgument)
		return
	}

	filename := args
	var scenario *string
	if before, after, found := strings.Cut(args, "|"); found {
		filename = strings.TrimSpace(before)
		scenario = optional(strings.TrimSpace(after))
	}
	if filename == "" {
		reply(ctx, b, log, chatID, deps.Config.Messages.ProvideArgument)
		return
	}

	// Verify the character exists before queueing so typos fail fast.
	char, err := deps.Store.CharacterByFilename(ctx, filename)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up character", "error", err, "filename", filename)
		reply(ctx, b, log, chatID, deps.Config.Messages.GeneralError)
		return
	}
	if char == nil {
		reply(ctx, b, log, chatID, deps.Config.Messages.CharacterUnknown)
		return
	}

	deps.Queue.Enqueue(queue.NewActivateRequest(chatID, msg.From.ID, filename, true, scenario, nil))
	reply(ctx, b, log, chatID, deps.Config.Messages.Queued)
	log.InfoContext(ctx, "Activation queued", "chat_id", chatID, "filename", filename)
}
