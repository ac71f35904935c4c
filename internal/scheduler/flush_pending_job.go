package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
)

// PendingFlusher submits orders queued while the market was closed
type PendingFlusher interface {
	FlushPending(ctx context.Context, t time.Time) ([]domain.ExecutionOutcome, error)
}

// FlushPendingJob retries pending orders once the session opens
type FlushPendingJob struct {
	flusher PendingFlusher
	now     func() time.Time
	log     zerolog.Logger
}

// NewFlushPendingJob creates a new FlushPendingJob
func NewFlushPendingJob(flusher PendingFlusher, log zerolog.Logger) *FlushPendingJob {
	return &FlushPendingJob{
		flusher: flusher,
		now:     time.Now,
		log:     log.With().Str("job", "flush_pending_orders").Logger(),
	}
}

// Name returns the job name
func (j *FlushPendingJob) Name() string {
	return "flush_pending_orders"
}

// Run submits whatever the executor still holds
func (j *FlushPendingJob) Run() error {
	outcomes, err := j.flusher.FlushPending(context.Background(), j.now())
	if err != nil {
		return fmt.Errorf("failed to flush pending orders: %w", err)
	}

	filled := 0
	for _, o := range outcomes {
		if o.Trade != nil {
			filled++
		}
	}
	if len(outcomes) > 0 {
		j.log.Info().Int("processed", len(outcomes)).Int("filled", filled).Msg("Pending orders flushed")
	}
	return nil
}
