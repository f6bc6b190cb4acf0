// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"troupe/internal/bot"
	"troupe/internal/bot/handlers"
	"troupe/internal/characters"
	"troupe/internal/config"
	"troupe/internal/database"
	"troupe/internal/genbackend"
	"troupe/internal/logger"
	"troupe/internal/queue"
	"troupe/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, database,
// backend, telegram client, queue, scheduler), runs the orchestrator until
// shutdown, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	if cfg.Characters.Dir != "" {
		loaded, err := characters.LoadDirectory(ctx, cfg.Characters.Dir, store, log)
		if err != nil {
			log.Error("Failed to load character cards", "dir", cfg.Characters.Dir, "error", err)
			return 1
		}
		log.Info("Character cards loaded", "count", len(loaded))
	}

	backend, err := newBackend(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize generation backend", "kind", cfg.Backend.Kind, "error", err)
		return 1
	}

	q := queue.NewQueue()

	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Store:  store,
		Queue:  q,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewChatHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	env := &queue.Env{
		Log:       log,
		Store:     store,
		Backend:   backend,
		Cfg:       cfg,
		Messenger: telegram.NewMessenger(tg, log),
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	dispatcher := queue.NewDispatcher(q, env, cfg.Queue.PollInterval, cfg.Queue.RequestTimeout)

	sched, err := bot.NewScheduler(log, &cfg.Maintenance, store)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, tg, dispatcher, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}

// newBackend builds the configured generation backend.
func newBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (genbackend.Client, error) {
	switch cfg.Backend.Kind {
	case "webui":
		return genbackend.NewWebUIClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)
	case "gemini":
		g := cfg.Backend.Gemini
		return genbackend.NewGeminiClient(ctx, g.APIKey, g.Model, g.MaxRetries, g.RetryDelay, log)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}
