package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Sink receives events from the notifier's Run loop.
//
// Deliver is called from a single goroutine, one event at a time. A
// returned error triggers a retry unless it is a backoff.Permanent error.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// LogSink writes every event to slog at Info.
type LogSink struct{}

// Deliver logs ev. It never fails.
func (LogSink) Deliver(ctx context.Context, ev Event) error {
	slog.InfoContext(ctx, "event published",
		"event_id", ev.ID,
		"queue", ev.Queue,
		"topic", string(ev.Type),
		"seq", ev.Seq,
	)
	return nil
}

// MultiSink delivers to each sink in order and joins their errors.
//
// A retry redelivers to every sink, including those that succeeded;
// consumers deduplicate by Event.ID.
type MultiSink []Sink

// Deliver delivers ev to every sink.
func (m MultiSink) Deliver(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
