package execution

import "errors"

var (
	// ErrNilWorkers is returned when the controller has no worker group.
	ErrNilWorkers = errors.New("phase controller worker group is nil")

	// ErrNilMetrics is returned when the controller has no snapshot source.
	ErrNilMetrics = errors.New("phase controller metrics source is nil")

	// ErrInvalidTarget is returned when the target worker count is not positive.
	ErrInvalidTarget = errors.New("target workers must be positive")

	// ErrInvalidSteps is returned when the ramp step count is negative.
	ErrInvalidSteps = errors.New("ramp steps must not be negative")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("phase controller already started")
)
