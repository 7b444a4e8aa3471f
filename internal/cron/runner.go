// Package cron schedules the periodic alert generation sweep
package cron

import (
	"context"
	"sync"

	"github.com/careoclock/server/internal/alerts"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner owns the cron scheduler and triggers alert sweeps
type Runner struct {
	sweeper  *alerts.Sweeper
	logger   *zap.Logger
	schedule string

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
}

func NewRunner(sweeper *alerts.Sweeper, logger *zap.Logger, schedule string) *Runner {
	return &Runner{
		sweeper:  sweeper,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the sweep job and launches the scheduler. Invalid
// schedules fail here, before any job runs.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.cron = cron.New()

	_, err := r.cron.AddFunc(r.schedule, func() {
		results, err := r.sweeper.Run(ctx)
		if err != nil {
			r.logger.Error("scheduled alert sweep failed", zap.Error(err))
			return
		}
		r.logger.Info("scheduled alert sweep completed",
			zap.Int("alerts_generated", len(results)))
	})
	if err != nil {
		r.cancel()
		return err
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("sweep scheduler started", zap.String("schedule", r.schedule))
	return nil
}

// Reschedule swaps the sweep schedule at runtime. The running scheduler
// is torn down and restarted; an invalid expression keeps the old one.
func (r *Runner) Reschedule(ctx context.Context, schedule string) error {
	r.mu.Lock()
	if !r.running || schedule == r.schedule {
		r.mu.Unlock()
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	r.Stop()

	r.mu.Lock()
	r.schedule = schedule
	r.mu.Unlock()

	return r.Start(ctx)
}

// Stop halts the scheduler and waits for a running job to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}

	r.cancel()
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()

	r.running = false
	r.logger.Info("sweep scheduler stopped")
}
