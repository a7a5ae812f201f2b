package testutil

import (
	"sync"
	"time"
)

// Epoch is the start time used by FixedTime.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// FixedTime is a wall clock for tests. Now returns the same instant until
// Advance is called.
//
// Thread-safety: safe for concurrent use.
type FixedTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedTime returns a FixedTime starting at Epoch.
func NewFixedTime() *FixedTime {
	return &FixedTime{now: Epoch}
}

// Now returns the current fixed instant.
func (f *FixedTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *FixedTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
