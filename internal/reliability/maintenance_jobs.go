package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/hybrid-trader/internal/database"
	"github.com/rs/zerolog"
)

// VacuumJob reclaims space in the databases that see deletes (weekly)
type VacuumJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewVacuumJob creates a new vacuum job
func NewVacuumJob(databases map[string]*database.DB, log zerolog.Logger) *VacuumJob {
	return &VacuumJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_vacuum").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *VacuumJob) Name() string {
	return "weekly_vacuum"
}

// Run executes the vacuum job. A failing database does not stop the others.
func (j *VacuumJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	failed := 0
	for name, db := range j.databases {
		if db == nil {
			continue
		}
		if err := j.vacuumDatabase(db, name); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("VACUUM failed")
			failed++
		}
	}

	j.log.Info().
		Int("failed", failed).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Weekly maintenance completed")

	if failed > 0 {
		return fmt.Errorf("vacuum failed for %d database(s)", failed)
	}
	return nil
}

// vacuumDatabase performs VACUUM on a database
func (j *VacuumJob) vacuumDatabase(db *database.DB, name string) error {
	before, err := db.GetStats()
	if err != nil {
		return err
	}

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	after, err := db.GetStats()
	if err != nil {
		return err
	}

	sizeBefore := float64(before.PageCount*before.PageSize) / 1024 / 1024
	sizeAfter := float64(after.PageCount*after.PageSize) / 1024 / 1024
	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}

// ExportRotationJob deletes old exported result sets (daily)
type ExportRotationJob struct {
	exporter      *ResultExporter
	retentionDays int
	log           zerolog.Logger
}

// NewExportRotationJob creates a new export rotation job
func NewExportRotationJob(exporter *ResultExporter, retentionDays int, log zerolog.Logger) *ExportRotationJob {
	return &ExportRotationJob{
		exporter:      exporter,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "export_rotation").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *ExportRotationJob) Name() string {
	return "export_rotation"
}

// Run executes the rotation
func (j *ExportRotationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := j.exporter.RotateExports(ctx, j.retentionDays); err != nil {
		return fmt.Errorf("failed to rotate exports: %w", err)
	}
	return nil
}
