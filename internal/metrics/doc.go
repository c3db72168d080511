// Package metrics exposes fetch and push counters and the latest comparison
// gauges in the Prometheus text format at /metrics.
package metrics
