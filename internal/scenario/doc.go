// Package scenario contains the benchmark engines.
//
// Every engine drives the same machinery: a target adapter, a worker pool
// recording into a metrics aggregator, and a phase controller that ramps the
// workers up, holds them and ramps them down. Engines differ in the target
// they bind, the workload they generate and how they score the outcome.
package scenario
