// Package mssql implements a Microsoft SQL Server storage.Repository using
// go-mssqldb over database/sql. Bulk loading uses batched parameterized
// INSERTs inside a transaction; the swap uses sp_rename, which is
// transactional on SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"funnel/internal/storage"
)

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a Repository and returns a Close function for
// cleanup. The DSN is validated with msdsn before opening to fail fast on
// obvious mistakes.
func NewRepository(ctx context.Context, dsn string) (*Repository, func(), error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mssql ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db}, closeFn, nil
}

// sqlType maps neutral column kinds onto SQL Server types.
func sqlType(kind string) string {
	switch kind {
	case storage.KindInteger:
		return "BIGINT"
	case storage.KindReal:
		return "FLOAT"
	case storage.KindBool:
		return "SMALLINT"
	case storage.KindDate:
		return "DATE"
	default:
		return "NVARCHAR(MAX)"
	}
}

// RecreateTable drops and recreates the table.
func (r *Repository) RecreateTable(ctx context.Context, table string, cols []storage.Column) error {
	if err := r.Exec(ctx, fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s",
		strings.ReplaceAll(table, "'", "''"), msIdent(table),
	)); err != nil {
		return err
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		def := msIdent(c.Name) + " " + sqlType(c.Kind)
		if c.NotNull {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return r.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", msIdent(table), strings.Join(defs, ", ")))
}

// CopyFrom inserts rows in one transaction using a prepared INSERT with
// @pN placeholders.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mssql: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("@p%d", i+1)
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		msIdent(table),
		strings.Join(mapIdent(columns), ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("mssql: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return inserted, fmt.Errorf("mssql: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return inserted, fmt.Errorf("mssql: insert: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("mssql: commit: %w", err)
	}
	return inserted, nil
}

// SwapTables replaces target with staging in one transaction.
func (r *Repository) SwapTables(ctx context.Context, staging, target string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin swap: %w", err)
	}
	drop := fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s",
		strings.ReplaceAll(target, "'", "''"), msIdent(target),
	)
	if _, err := tx.ExecContext(ctx, drop); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("mssql: drop old: %w", err)
	}
	rename := fmt.Sprintf(
		"EXEC sp_rename N'%s', N'%s'",
		strings.ReplaceAll(staging, "'", "''"),
		strings.ReplaceAll(target, "'", "''"),
	)
	if _, err := tx.ExecContext(ctx, rename); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("mssql: rename: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit swap: %w", err)
	}
	return nil
}

// Exec executes an arbitrary SQL statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec: %w", err)
	}
	return nil
}

// msIdent bracket-quotes an identifier.
func msIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func mapIdent(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = msIdent(n)
	}
	return out
}
