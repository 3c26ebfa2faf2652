// Package store provides SQLite-backed storage for recorded engine sessions.
//
// A session is one run of an engine observed by the recorder. For each
// session the journal keeps:
//   - Dispatches: every accepted action with the state it was dispatched against
//   - Mutations: every mutation folded into state
//   - States: every state emitted on the state stream, with a content hash
//   - Effects: every effect delivered to observers
//
// Rows in each stream are keyed by (session_id, seq) where seq is the
// observation order within that stream. Queries order by seq, never by wall
// time, so reading a session back is deterministic. Writes use
// ON CONFLICT DO NOTHING and are idempotent.
//
// Payloads are canonical JSON (see internal/canonical).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
