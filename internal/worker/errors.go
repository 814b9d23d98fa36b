package worker

import "errors"

var (
	// ErrNilTarget is returned when the pool has no target to drive.
	ErrNilTarget = errors.New("worker pool target is nil")

	// ErrNoSteps is returned when no workload steps are defined.
	ErrNoSteps = errors.New("no workload steps defined")

	// ErrNilRecorder is returned when no sample recorder is configured.
	ErrNilRecorder = errors.New("sample recorder is nil")

	// ErrInvalidWeights is returned when step weights cannot form a distribution.
	ErrInvalidWeights = errors.New("step weights must be non-negative with a positive sum")

	// ErrNilBuilder is returned when a step cannot build its operation.
	ErrNilBuilder = errors.New("step operation builder is nil")
)
