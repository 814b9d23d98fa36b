// Package types defines the core data structures of the benchmark engine.
//
// This package contains the values that flow between components:
//   - Samples and windowed metric snapshots
//   - Breaking points and scenario results
//   - Alerts, regression analysis and the suite result document
//   - Progress events published while a suite runs
package types
