package handlers

import (
	"log/slog"

	"troupe/internal/config"
	"troupe/internal/database"
	"troupe/internal/queue"
)

// HandlerDeps provides dependencies for Telegram command handlers.
// Handlers validate input and enqueue work; the dispatcher executes it.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
	Queue  *queue.Queue
}
