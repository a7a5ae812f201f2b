// Package model defines the record types shared by the schemata stores,
// the orchestrator and the event notifier.
//
// A Schema is a uniquely named aggregate whose PropertyIDs list is the
// source of truth for which Property entities belong to it. Each Property
// carries a denormalized back-reference (SchemaName) to its owner by name,
// so a rename must be propagated explicitly.
//
// # Serialization
//
// Records carry explicit JSON tags; optional fields use omitempty. Event
// payloads and content-addressed identifiers use MarshalCanonical, an
// RFC 8785 canonical JSON encoder:
//   - Object keys sorted by UTF-16 code units
//   - Strings NFC normalized, no HTML escaping
//   - Floats and null are rejected
//   - time.Time is encoded as an RFC 3339 UTC string
package model
