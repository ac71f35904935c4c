// Package pipeline runs the per-instrument decision pipeline for live runs
// and backtests: Fetch, Signal, Execute and Track, with bounded concurrency.
package pipeline

import (
	"time"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/domain"
)

// Stage is one step of an instrument's pipeline
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageSignal  Stage = "signal"
	StageExecute Stage = "execute"
	StageTrack   Stage = "track"
)

// Stages lists the pipeline stages in execution order
var Stages = []Stage{StageFetch, StageSignal, StageExecute, StageTrack}

// State is where an instrument is in its pipeline
type State string

const (
	StatePending State = "pending"
	StateFetch   State = "fetch"
	StateSignal  State = "signal"
	StateExecute State = "execute"
	StateTrack   State = "track"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// next returns the state after the given stage completes
func next(stage Stage) State {
	switch stage {
	case StageFetch:
		return StateSignal
	case StageSignal:
		return StateExecute
	case StageExecute:
		return StateTrack
	default:
		return StateDone
	}
}

// Stage status values reported on the progress stream
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunKind distinguishes live runs from backtests
type RunKind string

const (
	KindLive     RunKind = "live"
	KindBacktest RunKind = "backtest"
)

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is the persisted record of one run
type Run struct {
	ID         string           `json:"id"`
	Kind       RunKind          `json:"kind"`
	Status     RunStatus        `json:"status"`
	Config     config.RunConfig `json:"config"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// InstrumentResult is the terminal outcome for one requested instrument.
// State is Done or Failed; a failed result names its stage and reason.
type InstrumentResult struct {
	Instrument  string                     `json:"instrument"`
	State       State                      `json:"state"`
	FailedStage Stage                      `json:"failed_stage,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Decision    *domain.AggregatedDecision `json:"decision,omitempty"`
	Trades      []domain.TradeRecord       `json:"trades"`
	Pending     []domain.Order             `json:"pending,omitempty"`
	Held        string                     `json:"held,omitempty"`
	Metrics     *domain.PerformanceMetrics `json:"metrics,omitempty"`
	EndingValue float64                    `json:"ending_value,omitempty"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Failed reports whether the instrument ended in the Failed state
func (r InstrumentResult) Failed() bool {
	return r.State == StateFailed
}

// RunResult is a run plus one result per requested instrument, in request order
type RunResult struct {
	Run     Run                `json:"run"`
	Results []InstrumentResult `json:"results"`
}

// Counts returns how many instruments finished and how many failed
func (r *RunResult) Counts() (succeeded, failed int) {
	for _, res := range r.Results {
		if res.Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
