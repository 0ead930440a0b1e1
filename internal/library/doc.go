// Package library is the public API of the versioned item store.
//
// A Store keeps the current snapshot of every item in a Hot Store and an
// append-only commit log per item in a Cold Store. Every write produces a
// new version and a new commit; nothing is ever deleted.
//
// # Write sequencing
//
// A write appends the commit to the Cold Store first and then replaces the
// snapshot in the Hot Store. The Cold Store is the source of truth: when a
// crash leaves history one version ahead, Get repairs the snapshot from the
// latest commit (see WithRepairOnRead) and Rebuild restores it explicitly.
//
// # Concurrency
//
// Writes to the same id are serialized by a per-id lock held across the
// read, merge, append and write steps. Writes to different ids proceed
// independently. WithExpectedVersion adds an optimistic check for callers
// that read, edit and write back across process boundaries.
package library
