// Package metrics aggregates operation samples into windowed snapshots and run summaries.
//
// The Aggregator keeps raw samples for a bounded retention horizon and derives every
// MetricSnapshot from them on demand, so snapshot values never drift from the samples
// that produced them. A cumulative HDR histogram backs the whole-run summary.
// The Collector exposes live values to Prometheus.
package metrics
