package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/pipeline"
	"github.com/rs/zerolog"
)

// LiveRunner starts a live run
type LiveRunner interface {
	Run(ctx context.Context, cfg config.RunConfig) (*pipeline.RunResult, error)
}

// LiveRunJob triggers the configured live run on schedule
type LiveRunJob struct {
	runner  LiveRunner
	cfg     config.RunConfig
	timeout time.Duration
	log     zerolog.Logger
}

// NewLiveRunJob creates a job that runs cfg. A zero timeout means no limit.
func NewLiveRunJob(runner LiveRunner, cfg config.RunConfig, timeout time.Duration, log zerolog.Logger) *LiveRunJob {
	return &LiveRunJob{
		runner:  runner,
		cfg:     cfg,
		timeout: timeout,
		log:     log.With().Str("job", "live_run").Logger(),
	}
}

// Name returns the job name
func (j *LiveRunJob) Name() string {
	return "live_run"
}

// Run executes the scheduled live run
func (j *LiveRunJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	result, err := j.runner.Run(ctx, j.cfg)
	if err != nil {
		return fmt.Errorf("scheduled live run failed: %w", err)
	}

	succeeded, failed := result.Counts()
	j.log.Info().
		Str("run_id", result.Run.ID).
		Str("status", string(result.Run.Status)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("Scheduled live run finished")
	return nil
}
