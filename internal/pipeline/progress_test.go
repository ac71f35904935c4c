package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressReporter(t *testing.T) {
	pr := NewProgressReporter(nil, "run-1", 2)
	start := time.Date(2024, 5, 6, 9, 35, 0, 0, time.UTC)
	pr.start = start
	clock := start
	pr.now = func() time.Time { return clock }

	clock = start.Add(2 * time.Second)
	p := pr.StageCompleted("AAA", StageFetch)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 8, p.Total)
	assert.Equal(t, 12.5, p.Percent)
	assert.InDelta(t, 14, p.ETASeconds, 1e-9)
	assert.Equal(t, StatusCompleted, p.Status)

	clock = start.Add(4 * time.Second)
	p = pr.StageFailed("BBB", StageSignal, "no quote")
	// signal, execute and track are skipped
	assert.Equal(t, 4, p.Completed)
	assert.Equal(t, 50.0, p.Percent)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "no quote", p.Message)
	assert.InDelta(t, 4, p.ETASeconds, 1e-9)

	for _, stage := range Stages[1:] {
		p = pr.StageCompleted("AAA", stage)
	}
	assert.Equal(t, 8, pr.Completed())
	assert.Equal(t, 100.0, p.Percent)
	assert.Zero(t, p.ETASeconds)
}

func TestProgressReporterNeverExceedsTotal(t *testing.T) {
	pr := NewProgressReporter(nil, "run-1", 1)
	pr.StageFailed("AAA", StageFetch, "boom")
	p := pr.StageFailed("AAA", StageFetch, "boom again")
	assert.Equal(t, 4, p.Completed)
	assert.Equal(t, 100.0, p.Percent)
}

func TestNextState(t *testing.T) {
	tests := []struct {
		stage Stage
		want  State
	}{
		{StageFetch, StateSignal},
		{StageSignal, StateExecute},
		{StageExecute, StateTrack},
		{StageTrack, StateDone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, next(tt.stage), string(tt.stage))
	}
}
