// Package bot implements lifecycle management and component orchestration:
// the Telegram listener, the request dispatcher, and the maintenance
// scheduler run under one errgroup.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"troupe/internal/config"
	"troupe/internal/queue"
)

// Bot wires the long-running components and manages their lifecycle.
type Bot struct {
	logger     *slog.Logger
	cfg        *config.Config
	tgBot      *tgbot.Bot
	dispatcher *queue.Dispatcher
	scheduler  *Scheduler
}

// NewBot creates the orchestrator over an initialized Telegram client,
// dispatcher, and scheduler.
func NewBot(logger *slog.Logger, cfg *config.Config, tgBot *tgbot.Bot, dispatcher *queue.Dispatcher, scheduler *Scheduler) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		cfg:        cfg,
		tgBot:      tgBot,
		dispatcher: dispatcher,
		scheduler:  scheduler,
	}
}

// Run starts all components and blocks until ctx is cancelled or a
// component fails. Shutdown is graceful: the dispatcher finishes its
// in-flight request and the scheduler waits for running jobs.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		err := b.dispatcher.Run(gCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("dispatcher stopped: %w", err)
		}
		return nil
	})

	if b.scheduler != nil {
		g.Go(func() error {
			if err := b.scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler...")

			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
