// Package store persists the execution journal in SQLite.
//
// The journal is append-only: calls, resolved segments, checkpoints,
// committed cell writes, and outcomes. Row IDs are content-addressed,
// so every insert is idempotent (ON CONFLICT DO NOTHING) and replaying
// the same submissions regenerates byte-identical rows.
//
// Replaying cell_writes in seq order rebuilds each canister's durable
// state; see RebuildState.
package store
