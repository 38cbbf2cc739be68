// Package storage persists audit entries beyond the rotating audit log so
// they can be queried after rotation.
//
// Drivers:
//   - file: append-only JSON Lines
//   - sqlite: a single-table SQLite database (modernc.org/sqlite, pure Go)
package storage
