// Package store persists item snapshots (the Hot Store) and per-item commit
// logs (the Cold Store).
//
// Two backends implement the same interfaces:
//   - Dir: one JSON file per snapshot under items/ and one JSON Lines log per
//     item under history/, rooted at a configurable directory
//   - SQLite: a single database file with a snapshots table and an
//     append-only commits table
//
// Both backends persist canonical JSON produced by the doc package. Records
// that fail to decode are reported as ErrCorrupt on direct reads and skipped
// with a logged warning on scans; they never abort a listing.
//
// # Ordering
//
// ReadCommits returns commits in physical append order. Sorting for
// presentation is the caller's concern.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// The snapshots and commits tables are independent: history may run ahead
// of, or exist without, a snapshot.
package store
