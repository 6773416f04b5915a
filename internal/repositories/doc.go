// Package repositories implements SQLite persistence.
//
// Key Implementations:
//   - [KVRepository] : the kv_store table, backing token records and sessions
//   - [TransferRepository] : transfer history with status and session queries
//
// Sequence numbers provide stable ordering of transfers independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
