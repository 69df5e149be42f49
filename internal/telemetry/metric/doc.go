// Package metric provides Prometheus metrics for slot operations.
//
//   - prometheus.go: operation counters and histograms, HTTP handler
//   - collector.go: gauges sampled from a live engine on every scrape
//
// Metrics are namespaced "slotkeep".
package metric
