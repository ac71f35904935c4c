package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/hybrid-trader/internal/database"
	"github.com/rs/zerolog"
)

// CheckCoreDatabasesJob verifies integrity of the ledger and results databases
type CheckCoreDatabasesJob struct {
	log       zerolog.Logger
	databases map[string]*database.DB
}

// NewCheckCoreDatabasesJob creates a new CheckCoreDatabasesJob
func NewCheckCoreDatabasesJob(databases map[string]*database.DB, log zerolog.Logger) *CheckCoreDatabasesJob {
	return &CheckCoreDatabasesJob{
		log:       log.With().Str("job", "check_core_databases").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *CheckCoreDatabasesJob) Name() string {
	return "check_core_databases"
}

// Run executes the check core databases job
func (j *CheckCoreDatabasesJob) Run() error {
	for _, name := range sortedNames(j.databases) {
		db := j.databases[name]
		if db == nil {
			j.log.Warn().Str("database", name).Msg("Database not initialized, skipping")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.HealthCheck(ctx)
		cancel()
		if err != nil {
			// Ledger corruption cannot be repaired automatically
			j.log.Error().
				Err(err).
				Str("database", name).
				Msg("Core database integrity check failed")
			return fmt.Errorf("database %s is corrupted: %w", name, err)
		}

		j.log.Debug().Str("database", name).Msg("Database integrity OK")
	}

	j.log.Info().Msg("All core databases integrity check passed")
	return nil
}
