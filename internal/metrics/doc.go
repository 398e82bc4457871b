// Package metrics provides real-time request metrics for the gateway.
//
// It uses a channel-based event pipeline to asynchronously collect, per
// proxied service:
//   - Request counts
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//   - Availability tracking
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the proxy path. Events are sent via a buffered channel with
// non-blocking semantics so a slow collector never degrades forwarding.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	// Emit events while proxying
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Service:    "cv",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	// Get a metrics snapshot
//	snapshot := collector.Snapshot()
//
// The collector drains pending events on shutdown to prevent data loss.
package metrics
