// Package metrics collects relay and health events for the admin endpoint.
//
// A channel-based pipeline keeps accounting off the forwarding path: the
// relay and health checkers emit events with non-blocking semantics, a
// dedicated goroutine folds them into per-backend counts and forward-latency
// percentiles (P50, P95, P99), and the admin server serves snapshots as JSON.
// Shutdown drains the channel so late events are not lost.
package metrics
