// Package repositories implements SQLite persistence for the chat transcript store.
//
// [MessageRepository] is append-only: chat turns are inserted and read back in
// order but never updated or deleted. Sequence numbers provide stable, human-readable
// ordering independent of UUIDs and creation timestamps; the [NextSequence] function
// atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
