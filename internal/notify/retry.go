package notify

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/schemata/internal/observability"
)

// RetryPolicy configures redelivery of a failed event.
//
// The first retry waits MinTimeout; each later wait is multiplied by
// Factor with no upper bound on a single wait. At most Retries retries
// follow the first attempt.
type RetryPolicy struct {
	MinTimeout time.Duration
	Retries    int
	Factor     float64
}

// DefaultRetryPolicy waits 1s, then grows by 1.8x, for up to 10 retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MinTimeout: time.Second,
		Retries:    10,
		Factor:     1.8,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinTimeout
	b.Multiplier = p.Factor
	b.RandomizationFactor = 0
	// The library default caps a wait at 60s.
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.Reset()
	return b
}

// deliver hands ev to the sink, retrying per the policy.
// Returns the last delivery error once retries are exhausted, or the
// context error if ctx ends first.
func (n *Notifier) deliver(ctx context.Context, ev Event) error {
	topic := string(ev.Type)
	attempt := 0

	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			attempt++
			return struct{}{}, n.sink.Deliver(ctx, ev)
		},
		backoff.WithBackOff(n.retry.backOff()),
		backoff.WithMaxTries(uint(n.retry.Retries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			observability.RecordDelivery(topic, observability.OutcomeRetry)
			slog.Warn("event delivery failed, retrying",
				"event_id", ev.ID,
				"topic", topic,
				"seq", ev.Seq,
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
		}),
	)
	return err
}
