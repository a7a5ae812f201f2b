// Package store provides SQLite-backed storage for schemata aggregates and
// their property entities.
//
// The two record kinds live in separate database files, opened as
// SchemaStore and PropertyStore. They fail independently and share no
// transaction; keeping them consistent is the orchestrator's job.
//
// # Identity
//
// Identities are UUIDv7 strings. Any lookup with an identity that does not
// parse as a UUID fails with ErrInvalidID before touching the database,
// which keeps "malformed id" distinct from "well-formed but absent"
// (ErrNotFound).
//
// # Concurrency
//
// SchemaStore.UpdateByID is an optimistic compare-and-swap on the
// document's Version. A stale version yields ErrVersionConflict. Schema
// names carry a UNIQUE index; a collision yields ErrDuplicateName.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
