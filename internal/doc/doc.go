// Package doc defines the lectern data model: item snapshots, history
// commits, the closed set of payload variants, and the canonical JSON and
// hashing rules that give every snapshot a stable content fingerprint.
//
// This package imports nothing internal. Every other package builds on it.
//
// Key design constraints:
//   - NO float types in payloads - use int64 (durations in milliseconds)
//   - All JSON keys use snake_case
//   - Persisted records are RFC 8785 canonical JSON
//   - Payload keys never collide with envelope keys
package doc
