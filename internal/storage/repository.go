// Package storage contains storage-agnostic contracts and utilities: the
// Repository interface implemented by each backend, a kind-keyed factory
// registry, and a batched channel loader shared by all backends.
package storage

import "context"

// Portable column types. Each backend maps these to its native DDL types.
const (
	TypeText   = "text"
	TypeBigint = "bigint"
	TypeDouble = "double"
)

// Column describes one destination column for EnsureTable.
type Column struct {
	Name string
	Type string
}

// Repository is the minimal contract the pipeline needs from a store: create
// a table, reset it, append rows in bulk, and read a table back in a
// caller-defined order. Implementations must tolerate repeated EnsureTable
// calls.
type Repository interface {
	// EnsureTable creates the table if it does not already exist.
	EnsureTable(ctx context.Context, table string, cols []Column) error

	// Truncate removes all rows from the table. Each run regenerates both
	// tables from the snapshot corpus, so stale rows from earlier runs must
	// never survive into a rerun.
	Truncate(ctx context.Context, table string) error

	// CopyFrom appends rows (aligned to columns order) to the table using the
	// backend's most efficient bulk primitive. It returns the number of rows
	// reported as inserted.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// ScanTable reads the named columns from the table ordered by orderBy and
	// invokes fn once per row. Iteration stops at the first fn error.
	ScanTable(ctx context.Context, table string, columns, orderBy []string, fn func(row []any) error) error

	// Close releases the underlying connection or pool.
	Close()
}
