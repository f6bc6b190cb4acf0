package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/database"
	"troupe/internal/queue"
)

type nickHandler struct {
	deps HandlerDeps
}

// NewNickHandler returns a handler for the /nick command, which sets the
// sender's per-room display name used in prompts and history.
func NewNickHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return nickHandler{deps}.Handle
}

func (h nickHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "nick")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID
	username := senderName(msg.From)

	nickname := commandArgs(msg.Text)
	if nickname == "" {
		reply(ctx, b, log, chatID, deps.Config.Messages.ProvideArgument)
		return
	}

	deps.Queue.Enqueue(queue.NewGenericDatabaseRequest(chatID, userID,
		func(ctx context.Context, store database.Store) error {
			if err := store.UpsertUser(ctx, userID, username); err != nil {
				return err
			}
			return store.SetNickname(ctx, chatID, userID, nickname)
		},
		deps.Config.Messages.NicknameSet,
		deps.Config.Messages.OperationFailed,
	))
	reply(ctx, b, log, chatID, deps.Config.Messages.Queued)
	log.InfoContext(ctx, "Nickname update queued", "chat_id", chatID, "user_id", userID)
}
