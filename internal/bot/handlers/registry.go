package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its registration
// metadata and middleware.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot
// commands with their handlers and middleware. The default (non-command)
// message handler is registered separately as the bot's default handler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	command := func(pattern string, handler tgbot.HandlerFunc, mw ...tgbot.Middleware) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     handler,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  mw,
		}
	}

	adminOnly := AdminOnly(deps)

	return map[string]RegisteredHandler{
		"/start":      command("start", NewStartHandler(deps)),
		"/help":       command("help", NewHelpHandler(deps)),
		"/activate":   command("activate", NewActivateHandler(deps)),
		"/deactivate": command("deactivate", NewDeactivateHandler(deps)),
		"/chars":      command("chars", NewCharsHandler(deps)),
		"/scenario":   command("scenario", NewScenarioHandler(deps)),
		"/nick":       command("nick", NewNickHandler(deps)),
		"/continue":   command("continue", NewContinueHandler(deps)),
		"/speak":      command("speak", NewSpeakHandler(deps), adminOnly),
		"/gen":        command("gen", NewGenHandler(deps), adminOnly),
		"/clear":      command("clear", NewClearHandler(deps), adminOnly),
	}
}
