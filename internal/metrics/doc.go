// Package metrics exposes pool health over Prometheus.
//
// Key metrics:
//   - Channel counts by state (active, idle, error)
//   - Queued acquire callers
//   - Message throughput and mean probe latency
//   - Channel churn (created, reused)
package metrics
