package simulation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/simsynai/platform/internal/app/domain/simulation"
	"github.com/simsynai/platform/internal/app/storage"
	"github.com/simsynai/platform/pkg/logger"
)

// Janitor periodically fails tasks stuck in the running state. A task whose
// worker died mid-run would otherwise stay running forever and block retries.
type Janitor struct {
	tasks    storage.TaskStore
	schedule string
	staleAge time.Duration
	log      *logger.Logger
	cron     *cron.Cron
}

// NewJanitor creates a janitor sweeping on the given cron schedule. Tasks
// running without a status update for longer than staleAge are marked failed.
func NewJanitor(tasks storage.TaskStore, schedule string, staleAge time.Duration, log *logger.Logger) *Janitor {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if staleAge <= 0 {
		staleAge = time.Hour
	}
	if log == nil {
		log = logger.NewDefault("simulation-janitor")
	}
	return &Janitor{
		tasks:    tasks,
		schedule: schedule,
		staleAge: staleAge,
		log:      log,
	}
}

// Name implements system.Service.
func (j *Janitor) Name() string { return "simulation-janitor" }

// Start schedules the periodic sweep.
func (j *Janitor) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() {
		if n := j.sweepBefore(context.Background(), time.Now().Add(-j.staleAge)); n > 0 {
			j.log.WithField("count", n).Warn("failed stale running tasks")
		}
	}); err != nil {
		return err
	}
	j.cron = c
	c.Start()
	j.log.WithField("schedule", j.schedule).Info("simulation janitor started")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	if j.cron == nil {
		return nil
	}
	stopped := j.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweepBefore marks running tasks last touched before the cutoff as failed
// and returns how many were updated.
func (j *Janitor) sweepBefore(ctx context.Context, cutoff time.Time) int {
	stale, err := j.tasks.ListStaleRunning(ctx, cutoff)
	if err != nil {
		j.log.WithError(err).Error("list stale running tasks")
		return 0
	}

	count := 0
	for _, task := range stale {
		now := time.Now().UTC()
		task.Status = simulation.StatusFailed
		task.ErrorMessage = "worker lost: task was running past the stale deadline"
		task.CompletedAt = &now
		if _, err := j.tasks.UpdateTask(ctx, task); err != nil {
			j.log.WithField("task_id", task.ID).WithError(err).Warn("fail stale task")
			continue
		}
		count++
	}
	return count
}
