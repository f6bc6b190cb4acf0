package handlers

import (
	"context"
	"errors"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"troupe/internal/queue"
)

type clearHandler struct {
	deps HandlerDeps
}

// NewClearHandler returns a handler for the /clear command.
// Usage: /clear [history|characters|scenario|charscenarios|greet|all]...
// With no argument everything is cleared. The greet flag re-sends the
// active characters' greetings after the reset.
func NewClearHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return clearHandler{deps}.Handle
}

func (h clearHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "clear")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	var history, characters, scenario, charScenarios, greet bool
	args := strings.Fields(commandArgs(msg.Text))
	if len(args) == 0 {
		args = []string{"all"}
	}
	for _, arg := range args {
		switch strings.ToLower(arg) {
		case "history":
			history = true
		case "characters":
			characters = true
		case "scenario":
			scenario = true
		case "charscenarios":
			charScenarios = true
		case "greet":
			greet = true
		case "all":
			history, characters, scenario, charScenarios = true, true, true, true
		default:
			reply(ctx, b, log, chatID, deps.Config.Messages.ProvideArgument)
			return
		}
	}

	req, err := queue.NewClearRequest(chatID, msg.From.ID, history, characters, scenario, charScenarios)
	if err != nil {
		if errors.Is(err, queue.ErrNothingToClear) {
			reply(ctx, b, log, chatID, deps.Config.Messages.NothingToClear)
			return
		}
		log.ErrorContext(ctx, "Failed to build clear request", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, deps.Config.Messages.GeneralError)
		return
	}

	deps.Queue.Enqueue(req)
	reply(ctx, b, log, chatID, deps.Config.Messages.Queued)
	log.InfoContext(ctx, "Clear queued", "chat_id", chatID, "args", args)

	// Greetings go out behind the clear on the same queue, so they land in
	// the freshly reset history. Pointless when characters are being
	// deactivated too.
	if greet && !characters {
		active, err := deps.Store.ActiveCharacters(ctx, chatID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to load active characters for greetings", "error", err, "chat_id", chatID)
			return
		}
		for _, c := range active {
			if c.Greeting == "" {
				continue
			}
			deps.Queue.Enqueue(queue.NewSaveAndSendMessageRequest(chatID, msg.From.ID, c.Name, c.Greeting, true))
		}
	}
}
