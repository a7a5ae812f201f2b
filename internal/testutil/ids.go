package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates well-formed UUID strings from a counter:
// 00000000-0000-7000-8000-000000000001, ...-000000000002, and so on.
//
// Output is deterministic, so golden files and assertions can name the
// identities a scenario will produce.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu sync.Mutex
	n  int64
}

// NewSequentialIDs returns a generator whose first ID ends in ...0001.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// NewID returns the next identity.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return ID(g.n)
}

// ID formats n the way SequentialIDs does.
func ID(n int64) string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", n)
}
