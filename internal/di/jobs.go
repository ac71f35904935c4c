// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"
	"time"

	"github.com/aristath/hybrid-trader/internal/clientdata"
	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/reliability"
	"github.com/aristath/hybrid-trader/internal/scheduler"
	"github.com/rs/zerolog"
)

// Job schedules (cron with seconds)
const (
	flushPendingSchedule   = "0 * * * * *"    // every minute
	cacheCleanupSchedule   = "0 15 3 * * *"   // daily 03:15
	walCheckpointSchedule  = "0 */10 * * * *" // every 10 minutes
	integritySchedule      = "0 0 4 * * *"    // daily 04:00
	vacuumSchedule         = "0 30 4 * * SUN" // weekly
	exportRotationSchedule = "0 45 4 * * *"   // daily 04:45
	exportRetentionDays    = 90
	liveRunTimeout         = time.Hour
)

type scheduledJob struct {
	schedule string
	job      scheduler.Job
}

// RegisterJobs creates the scheduler and registers all periodic jobs
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	dbs := container.Databases()

	jobs := []scheduledJob{
		// Trading
		{cfg.ScheduleSpec, scheduler.NewLiveRunJob(container.Orchestrator, cfg.Run, liveRunTimeout, log)},
		{flushPendingSchedule, scheduler.NewFlushPendingJob(container.Executor, log)},

		// Cache
		{cacheCleanupSchedule, clientdata.NewCleanupJob(container.SnapshotCache, log)},

		// Database health
		{walCheckpointSchedule, scheduler.NewCheckWALCheckpointsJob(dbs, log)},
		{integritySchedule, scheduler.NewCheckCoreDatabasesJob(dbs, log)},
		{vacuumSchedule, reliability.NewVacuumJob(dbs, log)},
	}

	if container.Exporter != nil {
		rotation := reliability.NewExportRotationJob(container.Exporter, exportRetentionDays, log)
		jobs = append(jobs, scheduledJob{exportRotationSchedule, rotation})
	}

	byName := make(map[string]scheduler.Job, len(jobs))
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
		byName[j.job.Name()] = j.job
	}

	container.Scheduler = sched
	container.Jobs = byName
	return nil
}
