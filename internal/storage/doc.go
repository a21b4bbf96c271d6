// Package storage implements todo.Store.
//
// Drivers:
//   - "sqlite": a single SQLite file (modernc.org/sqlite, no cgo)
//   - "memory": process-local maps, used by tests and dry runs
package storage
