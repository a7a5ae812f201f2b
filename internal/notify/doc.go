// Package notify implements the asynchronous event notifier that broadcasts
// schema lifecycle events after the orchestrator commits.
//
// # Delivery model
//
// Publish stamps an event with a sequence number from a monotonic Clock
// and a content-addressed ID, then appends it to an unbounded in-process
// FIFO queue and returns. It never waits for delivery. A single Run loop
// drains the queue in order and hands each event to a Sink.
//
// A failing delivery is retried with exponential backoff (RetryPolicy:
// minimum timeout, retry count, factor). Events that exhaust their
// retries are logged and dropped, so delivery is at-least-once per
// attempt but not guaranteed. Sinks return backoff.Permanent to skip the
// remaining retries for errors that cannot succeed later.
//
// # Event identity
//
// Event.ID is derived from (topic, seq, payload) via model.EventID, so a
// redelivered event keeps its ID and consumers can deduplicate.
//
// # Sinks
//
//   - LogSink: writes every event to slog
//   - Hub: websocket fan-out to connected clients (also an http.Handler)
//   - MultiSink: delivers to several sinks in order
//   - SinkFunc: adapter for tests and ad-hoc sinks
package notify
