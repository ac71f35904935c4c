package pipeline

import (
	"sync"
	"time"

	"github.com/aristath/hybrid-trader/internal/events"
)

// ProgressReporter emits one progress event per completed stage of a run.
// Percent is completed steps over instruments times stages; a failed
// instrument counts its skipped stages as completed so a run always ends at 100.
type ProgressReporter struct {
	mu           sync.Mutex
	eventManager *events.Manager
	runID        string
	total        int
	completed    int
	start        time.Time
	now          func() time.Time
}

// NewProgressReporter creates a reporter for a run over n instruments
func NewProgressReporter(em *events.Manager, runID string, instruments int) *ProgressReporter {
	return &ProgressReporter{
		eventManager: em,
		runID:        runID,
		total:        instruments * len(Stages),
		start:        time.Now(),
		now:          time.Now,
	}
}

// StageCompleted records a successful stage
func (pr *ProgressReporter) StageCompleted(instrument string, stage Stage) events.RunProgressData {
	return pr.advance(instrument, stage, StatusCompleted, 1, "")
}

// StageFailed records a failed stage and skips the instrument's remaining stages
func (pr *ProgressReporter) StageFailed(instrument string, stage Stage, message string) events.RunProgressData {
	return pr.advance(instrument, stage, StatusFailed, len(Stages)-stageIndex(stage), message)
}

func (pr *ProgressReporter) advance(instrument string, stage Stage, status string, steps int, message string) events.RunProgressData {
	pr.mu.Lock()
	pr.completed += steps
	if pr.completed > pr.total {
		pr.completed = pr.total
	}
	now := pr.now()
	data := events.RunProgressData{
		RunID:      pr.runID,
		Instrument: instrument,
		Stage:      string(stage),
		Status:     status,
		Completed:  pr.completed,
		Total:      pr.total,
		Percent:    percent(pr.completed, pr.total),
		ETASeconds: eta(now.Sub(pr.start), pr.completed, pr.total),
		Message:    message,
		Timestamp:  now,
	}
	pr.mu.Unlock()

	if pr.eventManager != nil {
		pr.eventManager.EmitTyped(events.RunProgress, "pipeline", &data)
	}
	return data
}

// Completed returns the number of completed steps so far
func (pr *ProgressReporter) Completed() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.completed
}

func stageIndex(stage Stage) int {
	for i, s := range Stages {
		if s == stage {
			return i
		}
	}
	return 0
}

func percent(completed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(completed) / float64(total) * 100
}

// eta extrapolates the mean time per completed step over the remaining steps
func eta(elapsed time.Duration, completed, total int) float64 {
	if completed == 0 || completed >= total {
		return 0
	}
	perStep := elapsed.Seconds() / float64(completed)
	return perStep * float64(total-completed)
}
