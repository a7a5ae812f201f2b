package notify

import "sync/atomic"

// Sequencer hands out event sequence numbers.
// Clock is the only production implementation; tests may script their own.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock for event ordering.
//
// Every published event is stamped with a strictly increasing seq from
// this clock, so consumers can order events without trusting wall time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
// Used to continue numbering across restarts.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
