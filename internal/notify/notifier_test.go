package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/testutil"
)

// recordingSink collects delivered events. failFirst makes the first N
// deliveries fail.
type recordingSink struct {
	mu        sync.Mutex
	events    []Event
	attempts  int
	failFirst int
	err       error
}

func (s *recordingSink) Deliver(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failFirst {
		if s.err != nil {
			return s.err
		}
		return errors.New("broker unavailable")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) delivered() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

var fastRetry = RetryPolicy{MinTimeout: time.Millisecond, Retries: 3, Factor: 2}

func newTestNotifier(sink Sink, opts ...Option) *Notifier {
	clock := testutil.NewFixedTime()
	base := []Option{
		WithSequencer(NewClockAt(0)),
		WithNow(clock.Now),
		WithRetry(fastRetry),
	}
	return New(sink, append(base, opts...)...)
}

// runUntilStopped runs n, stops it and waits for the backlog to drain.
func runUntilStopped(t *testing.T, n *Notifier) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- n.Run(context.Background()) }()
	n.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func testAggregate() model.Aggregate {
	return model.Aggregate{
		Schema: model.Schema{
			ID:          testutil.ID(1),
			Name:        "person",
			PropertyIDs: []string{testutil.ID(2), testutil.ID(3)},
			CreatedAt:   testutil.Epoch,
			UpdatedAt:   testutil.Epoch,
			Version:     1,
		},
		Properties: []model.Property{
			{ID: testutil.ID(2), Name: "age", Type: model.PropertyType{Kind: model.KindNumber}, SchemaName: "person"},
			{ID: testutil.ID(3), Name: "status", Type: model.PropertyType{Kind: model.KindEnum, Values: []string{"active", "retired"}}, SchemaName: "person"},
		},
	}
}

func TestNotifier_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	n := newTestNotifier(sink)
	ctx := context.Background()

	require.NoError(t, n.Publish(ctx, SchemaCreated(testAggregate())))
	require.NoError(t, n.Publish(ctx, SchemaDeleted(testutil.ID(1), "person")))
	require.NoError(t, n.Publish(ctx, PropertyDeleted(testutil.ID(2), "age", "person")))
	assert.Equal(t, 3, n.Pending())

	runUntilStopped(t, n)

	events := sink.delivered()
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, DefaultQueueName, ev.Queue)
		assert.Equal(t, model.EventVersion, ev.Version)
		assert.Equal(t, testutil.Epoch, ev.OccurredAt)
	}
	assert.Equal(t, TopicSchemaCreated, events[0].Type)
	assert.Equal(t, TopicSchemaDeleted, events[1].Type)
	assert.Equal(t, TopicPropertyDeleted, events[2].Type)
	assert.Equal(t, 0, n.Pending())
}

func TestNotifier_GoldenEnvelopes(t *testing.T) {
	sink := &recordingSink{}
	n := newTestNotifier(sink)
	ctx := context.Background()

	require.NoError(t, n.Publish(ctx, SchemaCreated(testAggregate())))
	require.NoError(t, n.Publish(ctx, SchemaDeleted(testutil.ID(1), "person")))
	require.NoError(t, n.Publish(ctx, PropertyDeleted(testutil.ID(2), "age", "person")))
	runUntilStopped(t, n)

	events := sink.delivered()
	require.Len(t, events, 3)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for i, name := range []string{"schema_created", "schema_deleted", "property_deleted"} {
		data, err := events[i].Encode()
		require.NoError(t, err)
		g.Assert(t, name, data)
	}
}

func TestNotifier_EventIDStableAcrossRedelivery(t *testing.T) {
	sink := &recordingSink{}
	n := newTestNotifier(sink)
	msg := SchemaDeleted(testutil.ID(1), "person")

	require.NoError(t, n.Publish(context.Background(), msg))
	runUntilStopped(t, n)

	ev := sink.delivered()[0]
	want, err := model.EventID(string(msg.Topic), ev.Seq, msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, want, ev.ID)
}

func TestNotifier_RetriesThenSucceeds(t *testing.T) {
	sink := &recordingSink{failFirst: 2}
	n := newTestNotifier(sink)

	require.NoError(t, n.Publish(context.Background(), SchemaDeleted(testutil.ID(1), "x")))
	runUntilStopped(t, n)

	assert.Equal(t, 3, sink.attemptCount())
	assert.Len(t, sink.delivered(), 1)
}

func TestNotifier_DropsAfterRetriesExhausted(t *testing.T) {
	sink := &recordingSink{failFirst: 100}
	n := newTestNotifier(sink)
	ctx := context.Background()

	require.NoError(t, n.Publish(ctx, SchemaDeleted(testutil.ID(1), "x")))
	require.NoError(t, n.Publish(ctx, SchemaDeleted(testutil.ID(2), "y")))
	runUntilStopped(t, n)

	// Retries+1 attempts per event, then the loop moves on.
	assert.Equal(t, 2*(fastRetry.Retries+1), sink.attemptCount())
	assert.Empty(t, sink.delivered())
}

func TestNotifier_PermanentErrorSkipsRetries(t *testing.T) {
	sink := &recordingSink{failFirst: 100, err: backoff.Permanent(errors.New("bad payload"))}
	n := newTestNotifier(sink)

	require.NoError(t, n.Publish(context.Background(), SchemaDeleted(testutil.ID(1), "x")))
	runUntilStopped(t, n)

	assert.Equal(t, 1, sink.attemptCount())
}

func TestNotifier_PublishAfterStop(t *testing.T) {
	n := newTestNotifier(&recordingSink{})
	n.Stop()

	err := n.Publish(context.Background(), SchemaDeleted(testutil.ID(1), "x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNotifier_RejectsNonCanonicalPayload(t *testing.T) {
	n := newTestNotifier(&recordingSink{})

	err := n.Publish(context.Background(), Message{Topic: "bad", Payload: map[string]any{"f": 1.5}})
	assert.Error(t, err)
	assert.Equal(t, 0, n.Pending())
}

func TestNotifier_RunStopsOnContextCancel(t *testing.T) {
	n := newTestNotifier(&recordingSink{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.ErrorIs(t, n.Publish(context.Background(), SchemaDeleted(testutil.ID(1), "x")), ErrClosed)
}

func TestNotifier_WithQueueName(t *testing.T) {
	sink := &recordingSink{}
	n := newTestNotifier(sink, WithQueueName("custom.queue"))

	require.NoError(t, n.Publish(context.Background(), SchemaDeleted(testutil.ID(1), "x")))
	runUntilStopped(t, n)

	assert.Equal(t, "custom.queue", sink.delivered()[0].Queue)
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("down") })

	err := MultiSink{ok, failing, LogSink{}}.Deliver(context.Background(), Event{ID: "e"})
	assert.EqualError(t, err, "down")
	assert.Len(t, ok.delivered(), 1)
}

func TestSchemaUpdated_CarriesBoth(t *testing.T) {
	prev := testAggregate()
	next := testAggregate()
	next.Name = "human"

	msg := SchemaUpdated(next, prev)
	assert.Equal(t, TopicSchemaUpdated, msg.Topic)
	assert.Equal(t, "human", msg.Payload["schema"].(map[string]any)["schemaName"])
	assert.Equal(t, "person", msg.Payload["previous"].(map[string]any)["schemaName"])
}
