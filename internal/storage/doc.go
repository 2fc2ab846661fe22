// Package storage persists per-source watcher state across restarts.
//
// Drivers:
//   - "file": journal + snapshot (no external dependencies)
//   - "sqlite": modernc.org/sqlite database file
//   - "memory": process-local, for tests and dry runs
//
// State is the typed layer used by the watcher; Store is the raw key-value
// interface it sits on.
package storage
