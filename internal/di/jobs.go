package di

import (
	"fmt"

	"github.com/aristath/madfolio/internal/config"
	"github.com/aristath/madfolio/internal/scheduler"
	"github.com/rs/zerolog"
)

// walCheckSchedule runs the WAL check every 15 minutes.
const walCheckSchedule = "0 */15 * * * *"

// RegisterJobs creates the scheduler and registers the maintenance jobs
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(log)

	jobs := &JobInstances{
		CleanupExpired: scheduler.NewCleanupExpiredJob(map[string]scheduler.Expirer{
			"datasets": container.Datasets,
			"cache":    container.Cache,
		}, log),
		CheckWALCheckpoint: scheduler.NewCheckWALCheckpointsJob(log, container.Databases()...),
	}

	if err := container.Scheduler.AddJob(cfg.CleanupSchedule, jobs.CleanupExpired); err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_SCHEDULE %q: %w", cfg.CleanupSchedule, err)
	}
	if err := container.Scheduler.AddJob(walCheckSchedule, jobs.CheckWALCheckpoint); err != nil {
		return nil, err
	}
	return jobs, nil
}
