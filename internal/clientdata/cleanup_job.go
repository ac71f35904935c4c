package clientdata

import (
	"github.com/rs/zerolog"
)

// CleanupJob removes expired entries from all snapshot cache tables.
// It should be scheduled to run daily.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates a new snapshot cache cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "snapshot_cache_cleanup").Logger(),
	}
}

// Run removes all expired entries from every table.
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired snapshot cache entries")
		return err
	}

	var totalDeleted int64
	for kind, count := range results {
		if count > 0 {
			j.log.Info().
				Str("kind", string(kind)).
				Int64("deleted", count).
				Msg("Cleaned up expired cache entries")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Snapshot cache cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "snapshot_cache_cleanup"
}
