package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/observability"
)

// DefaultQueueName is stamped on events when no queue name is configured.
const DefaultQueueName = "schemata.events"

// ErrClosed is returned by Publish after Stop.
var ErrClosed = errors.New("notifier closed")

// Notifier is the asynchronous event notifier.
//
// Thread-safety model:
//   - Publish(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Stop(): safe from any goroutine, idempotent
type Notifier struct {
	sink      Sink
	queue     *eventQueue
	clock     Sequencer
	now       func() time.Time
	queueName string
	retry     RetryPolicy
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithQueueName sets the queue name stamped on every event.
func WithQueueName(name string) Option {
	return func(n *Notifier) {
		n.queueName = name
	}
}

// WithRetry sets the redelivery policy (default: DefaultRetryPolicy).
func WithRetry(p RetryPolicy) Option {
	return func(n *Notifier) {
		n.retry = p
	}
}

// WithSequencer replaces the event clock.
// NewClockAt continues numbering from a persisted value.
func WithSequencer(s Sequencer) Option {
	return func(n *Notifier) {
		n.clock = s
	}
}

// WithNow replaces the wall clock used for OccurredAt.
func WithNow(now func() time.Time) Option {
	return func(n *Notifier) {
		n.now = now
	}
}

// New creates a Notifier delivering to sink.
func New(sink Sink, opts ...Option) *Notifier {
	n := &Notifier{
		sink:      sink,
		queue:     newEventQueue(),
		clock:     NewClock(),
		now:       time.Now,
		queueName: DefaultQueueName,
		retry:     DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Publish stamps msg and enqueues it for delivery. It does not wait for
// delivery. Returns ErrClosed after Stop, or an error if the payload is
// not canonically encodable.
func (n *Notifier) Publish(ctx context.Context, msg Message) error {
	seq := n.clock.Next()
	id, err := model.EventID(string(msg.Topic), seq, msg.Payload)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}

	ev := Event{
		ID:         id,
		Seq:        seq,
		Queue:      n.queueName,
		Type:       msg.Topic,
		Version:    model.EventVersion,
		OccurredAt: n.now().UTC(),
		Payload:    msg.Payload,
	}
	if !n.queue.Enqueue(ev) {
		return ErrClosed
	}
	observability.SetQueueDepth(n.queue.Len())

	slog.DebugContext(ctx, "event queued",
		"event_id", id,
		"topic", string(msg.Topic),
		"seq", seq,
	)
	return nil
}

// Run delivers queued events in FIFO order until Stop or ctx ends.
//
// After Stop, Run delivers what is already queued and returns nil. On
// context cancellation it returns ctx.Err() and drops the backlog.
func (n *Notifier) Run(ctx context.Context) error {
	slog.Info("notifier starting", "queue", n.queueName)

	for {
		ev, ok := n.queue.TryDequeue()
		if ok {
			observability.SetQueueDepth(n.queue.Len())
			n.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			n.queue.Close()
			if dropped := n.queue.Len(); dropped > 0 {
				slog.Warn("notifier stopping: context cancelled", "dropped", dropped)
			} else {
				slog.Info("notifier stopping: context cancelled")
			}
			return ctx.Err()

		case <-n.queue.Wait():
			// The signal channel closes when the queue is closed.
			if n.queue.Len() == 0 && n.closed() {
				slog.Info("notifier stopping: queue closed")
				return nil
			}
		}
	}
}

// process delivers one event. Delivery failures are logged, never returned:
// the workflow that published the event has already committed.
func (n *Notifier) process(ctx context.Context, ev Event) {
	topic := string(ev.Type)
	if err := n.deliver(ctx, ev); err != nil {
		observability.RecordDelivery(topic, observability.OutcomeDropped)
		slog.Error("event delivery failed, dropping",
			"event_id", ev.ID,
			"topic", topic,
			"seq", ev.Seq,
			"error", err,
		)
		return
	}
	observability.RecordDelivery(topic, observability.OutcomeSuccess)
}

func (n *Notifier) closed() bool {
	n.queue.mu.Lock()
	defer n.queue.mu.Unlock()
	return n.queue.closed
}

// Stop rejects further publishes. Run drains the backlog and returns.
func (n *Notifier) Stop() {
	n.queue.Close()
}

// Pending returns the number of events waiting for delivery.
func (n *Notifier) Pending() int {
	return n.queue.Len()
}
