package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the decision core. Match with errors.Is.
var (
	// ErrDataUnavailable: a required snapshot field is missing. Strategies degrade to Hold.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrFetchFailed: network or timeout failure after retries. Fails one instrument.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrInvalidConfiguration: fatal at run start.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrExecutionRejected: the broker rejected an order. Recorded, not retried.
	ErrExecutionRejected = errors.New("execution rejected")
	// ErrInsufficientCapital: sizing yielded zero quantity. Treated as Hold.
	ErrInsufficientCapital = errors.New("insufficient capital")
	// ErrCancelled: the run was cancelled before the instrument finished.
	ErrCancelled = errors.New("cancelled")
)

// StageError records which pipeline stage failed for an instrument
type StageError struct {
	Instrument string
	Stage      string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s failed: %v", e.Instrument, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// InvalidConfigf builds an ErrInvalidConfiguration with detail
func InvalidConfigf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
