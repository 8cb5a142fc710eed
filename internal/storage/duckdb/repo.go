// Package duckdb implements a DuckDB-backed storage.Repository using
// database/sql. Inserts run as batched multi-value statements inside a
// transaction; DuckDB's appender API would be faster still, but transactions
// keep performance acceptable for daily snapshot volumes.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"pricehist/internal/storage"
)

// Repository is a DuckDB-backed implementation of storage.Repository.
type Repository struct {
	db      *sql.DB
	closeFn func()
}

// NewRepository opens a DuckDB database at the given DSN and returns a
// Repository plus a Close function for cleanup.
//
// DSN is passed directly to database/sql; for example:
//
//	"pricehist.duckdb"
//	""  (in-memory database)
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("duckdb: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("duckdb: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, closeFn: closeFn}, closeFn, nil
}

// sqlType maps portable column types to DuckDB DDL types.
func sqlType(t string) string {
	switch t {
	case storage.TypeBigint:
		return "BIGINT"
	case storage.TypeDouble:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

// EnsureTable creates the table if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context, table string, cols []storage.Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("duckdb: EnsureTable %s: no columns", table)
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c.Name) + " " + sqlType(c.Type)
	}
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(table),
		strings.Join(defs, ", "),
	)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("duckdb: create table %s: %w", table, err)
	}
	return nil
}

// Truncate removes all rows from the table.
func (r *Repository) Truncate(ctx context.Context, table string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+quoteIdent(table)); err != nil {
		return fmt.Errorf("duckdb: truncate %s: %w", table, err)
	}
	return nil
}

// CopyFrom inserts the given rows into the table using a single transaction
// and a prepared INSERT statement. len(row) must equal len(columns) for every
// row.
func (r *Repository) CopyFrom(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]any,
) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("duckdb: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("duckdb: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("duckdb: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return inserted, fmt.Errorf("duckdb: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return inserted, fmt.Errorf("duckdb: insert into %s: %w", table, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("duckdb: commit: %w", err)
	}
	return inserted, nil
}

// ScanTable streams the named columns ordered by orderBy through fn.
func (r *Repository) ScanTable(
	ctx context.Context,
	table string,
	columns, orderBy []string,
	fn func(row []any) error,
) error {
	if len(columns) == 0 {
		return fmt.Errorf("duckdb: ScanTable %s: no columns", table)
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(table))
	if len(orderBy) > 0 {
		ord := make([]string, len(orderBy))
		for i, c := range orderBy {
			ord[i] = quoteIdent(c)
		}
		query += " ORDER BY " + strings.Join(ord, ", ")
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("duckdb: scan %s: %w", table, err)
	}
	defer rows.Close()

	vals := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("duckdb: scan %s: %w", table, err)
		}
		row := make([]any, len(vals))
		copy(row, vals)
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("duckdb: scan %s: %w", table, err)
	}
	return nil
}

// Close implements storage.Repository.Close.
func (r *Repository) Close() {
	if r.closeFn != nil {
		r.closeFn()
	}
}

// quoteIdent safely quotes a single identifier for DuckDB.
func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
