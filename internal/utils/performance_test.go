package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTimerLogsSlowOperationsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	timer := NewTimer("fetch", log)
	timer.slow = time.Nanosecond
	time.Sleep(time.Millisecond)
	duration := timer.Stop()

	assert.GreaterOrEqual(t, duration, time.Millisecond)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"operation":"fetch"`)
}

func TestOperationTimer(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	OperationTimer("signal", log)()

	assert.Contains(t, buf.String(), `"level":"debug"`)
	assert.Contains(t, buf.String(), "Operation completed")
}
