// Package orchestrator implements the schema saga: the workflows that keep
// a schema aggregate, its property entities and the event stream
// consistent without a shared transaction.
//
// # Collaborators
//
// An Orchestrator is constructed once with an AggregateStore, a
// PropertyStore and a Publisher injected. It keeps no state of its own
// beyond the locks below; the stores are the source of truth.
//
// # Saga
//
// Every forward mutation of a property entity is recorded in a journal.
// When a later step fails, the journal is replayed backwards:
//
//  1. delete created properties
//  2. restore updated properties from their pre-update snapshots
//  3. re-create deleted properties from their snapshots
//  4. reverse a back-reference rename
//
// Compensation is best-effort: every step runs even if an earlier one
// failed. If all succeed the workflow fails with INVALID_VALUE_IN_SCHEMA
// (the original cause is masked from the message). If any fail, the
// workflow returns an *InconsistentStateError listing them.
//
// Events are published only after the aggregate is committed. A publish
// failure is logged and does not fail the workflow.
//
// # Isolation
//
// Workflows on one schema identity are serialized by a keyed lock. A
// global name lock covers the window from a name-uniqueness check to the
// aggregate write in create and renaming updates. The aggregate store's
// optimistic version check catches writers outside this process.
//
// # Deletes
//
// DeleteSchema is mark-then-purge: the aggregate is first marked
// PendingDelete, then its properties are deleted (absent ones count as
// done), then the document. A pending aggregate is hidden from reads but
// keeps its name reserved. Calling DeleteSchema again, or PurgePending,
// finishes an interrupted purge.
package orchestrator
