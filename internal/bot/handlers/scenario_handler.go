package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/database"
	"troupe/internal/queue"
)

type scenarioHandler struct {
	deps HandlerDeps
}

// NewScenarioHandler returns a handler for the /scenario command. With an
// argument it sets the room scenario; without one it clears it.
func NewScenarioHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return scenarioHandler{deps}.Handle
}

func (h scenarioHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "scenario")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	scenario := optional(commandArgs(msg.Text))
	success := deps.Config.Messages.ScenarioSet
	if scenario == nil {
		success = deps.Config.Messages.ScenarioCleared
	}

	deps.Queue.Enqueue(queue.NewGenericDatabaseRequest(chatID, msg.From.ID,
		func(ctx context.Context, store database.Store) error {
			return store.SetScenario(ctx, chatID, scenario)
		},
		success,
		deps.Config.Messages.OperationFailed,
	))
	reply(ctx, b, log, chatID, deps.Config.Messages.Queued)
	log.InfoContext(ctx, "Scenario update queued", "chat_id", chatID, "clearing", scenario == nil)
}
