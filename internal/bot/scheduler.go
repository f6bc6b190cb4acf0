package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"troupe/internal/config"
	"troupe/internal/database"
)

// Scheduler runs the periodic database maintenance job using gocron.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.MaintenanceConfig
	store     database.Store
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler for the configured maintenance job.
func NewScheduler(logger *slog.Logger, cfg *config.MaintenanceConfig, store database.Store) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "scheduler")

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    log,
		cfg:       cfg,
		store:     store,
	}, nil
}

// Start schedules the maintenance job and starts the scheduler's internal
// ticking. When maintenance is disabled the scheduler still starts so Stop
// stays uniform.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.cfg == nil || !s.cfg.Enabled || s.cfg.Cron == "" {
		s.logger.Info("Database maintenance disabled.")
		s.scheduler.Start()
		s.running = true
		return nil
	}

	_, err := s.scheduler.NewJob(
		gocron.CronJob(s.cfg.Cron, false),
		gocron.NewTask(func(ctx context.Context) {
			s.logger.Info("Running database maintenance")
			start := time.Now()
			if err := s.store.RunMaintenance(ctx); err != nil {
				s.logger.Error("Database maintenance failed", "error", err)
			}
			s.logger.Info("Finished database maintenance", "duration", time.Since(start))
		}, context.Background()),
		gocron.WithName("db_maintenance"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "maintenance_cron", s.cfg.Cron)
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}
