// Package storage persists targets, groups, per-platform content blobs and
// the publish audit log.
//
// Two backends exist:
//   - "file": a JSON snapshot (rewritten atomically) plus an append-only audit JSONL
//   - "sqlite": a single SQLite database file (modernc.org/sqlite, no cgo)
//
// Driver "memory" keeps everything in process; it is what tests and one-off
// CLI runs use.
package storage
