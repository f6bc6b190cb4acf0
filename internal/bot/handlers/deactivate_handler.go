package handlers

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/database"
	"troupe/internal/queue"
)

type deactivateHandler struct {
	deps HandlerDeps
}

// NewDeactivateHandler returns a handler for the /deactivate command.
func NewDeactivateHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return deactivateHandler{deps}.Handle
}

func (h deactivateHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "deactivate")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	filename := commandArgs(msg.Text)
	if filename == "" {
		reply(ctx, b, log, chatID, deps.Config.Messages.ProvideArgument)
		return
	}

	deps.Queue.Enqueue(queue.NewGenericDatabaseRequest(chatID, msg.From.ID,
		func(ctx context.Context, store database.Store) error {
			return store.SetActiveCharacter(ctx, chatID, filename, false, nil, nil)
		},
		fmt.Sprintf(deps.Config.Messages.Deactivated, filename),
		deps.Config.Messages.OperationFailed,
	))
	reply(ctx, b, log, chatID, deps.Config.Messages.Queued)
	log.InfoContext(ctx, "Deactivation queued", "chat_id", chatID, "filename", filename)
}
