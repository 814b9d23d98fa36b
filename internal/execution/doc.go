// Package execution drives a scenario run through its load phases.
//
// A Controller moves a worker group through Idle, RampingUp, Sustained,
// RampingDown and Completed. Ramp-up adds workers in equal steps, sampling
// metrics after each step; the sustained phase holds the worker count and
// measures stability; ramp-down mirrors ramp-up. A Detector watching the
// snapshots can trip the controller, which then skips straight to an orderly
// ramp-down.
package execution
