package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/database"
	"troupe/internal/queue"
)

type speakHandler struct {
	deps HandlerDeps
}

// NewSpeakHandler returns a handler for the /speak command, which toggles
// free-to-speak mode for the room.
func NewSpeakHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return speakHandler{deps}.Handle
}

func (h speakHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "speak")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	// Read the current state to phrase the confirmation; the toggle itself
	// runs serialized on the queue.
	free, err := deps.Store.FreeToSpeak(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read free-to-speak flag", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, deps.Config.Messages.GeneralError)
		return
	}
	success := deps.Config.Messages.FreeToSpeakOn
	if free {
		success = deps.Config.Messages.FreeToSpeakOff
	}

	deps.Queue.Enqueue(queue.NewGenericDatabaseRequest(chatID, msg.From.ID,
		func(ctx context.Context, store database.Store) error {
			_, err := store.ToggleFreeToSpeak(ctx, chatID)
			return err
		},
		success,
		deps.Config.Messages.OperationFailed,
	))
	reply(ctx, b, log, chatID, deps.Config.Messages.Queued)
	log.InfoContext(ctx, "Free-to-speak toggle queued", "chat_id", chatID, "was_free", free)
}
