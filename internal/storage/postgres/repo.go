// Package postgres implements a Postgres-backed storage.Repository using pgx
// v5. Bulk loading uses the COPY protocol, which is the fastest path into
// Postgres by a wide margin.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"funnel/internal/storage"
)

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository and returns a Close function for
// cleanup. The DSN is any connection string pgxpool accepts.
func NewRepository(ctx context.Context, dsn string) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pg ping: %w", err)
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool}, closeFn, nil
}

// sqlType maps neutral column kinds onto Postgres types.
func sqlType(kind string) string {
	switch kind {
	case storage.KindInteger:
		return "BIGINT"
	case storage.KindReal:
		return "DOUBLE PRECISION"
	case storage.KindBool:
		return "SMALLINT" // 0/1, matching the portable row encoding
	case storage.KindDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// RecreateTable drops and recreates the table.
func (r *Repository) RecreateTable(ctx context.Context, table string, cols []storage.Column) error {
	if err := r.Exec(ctx, "DROP TABLE IF EXISTS "+pgFQN(table)); err != nil {
		return err
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		def := pgIdent(c.Name) + " " + sqlType(c.Kind)
		if c.NotNull {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return r.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", pgFQN(table), strings.Join(defs, ", ")))
}

// CopyFrom bulk-loads rows into table via the COPY protocol.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier(splitFQN(table)),
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return n, fmt.Errorf("pg copy: %w", err)
	}
	return n, nil
}

// SwapTables replaces target with staging inside one transaction. DDL is
// transactional in Postgres, so readers see the old table until commit and
// the new one after, never an intermediate state.
func (r *Repository) SwapTables(ctx context.Context, staging, target string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg begin swap: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgFQN(target)); err != nil {
		return fmt.Errorf("pg drop old: %w", err)
	}
	// ALTER TABLE ... RENAME takes an unqualified new name within the same
	// schema, so only the last path element is used.
	parts := splitFQN(target)
	newName := parts[len(parts)-1]
	if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", pgFQN(staging), pgIdent(newName))); err != nil {
		return fmt.Errorf("pg rename: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg commit swap: %w", err)
	}
	return nil
}

// Exec executes an arbitrary SQL statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, sqlText); err != nil {
		return fmt.Errorf("pg exec: %w", err)
	}
	return nil
}

// pgIdent double-quotes a single identifier.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgFQN quotes a possibly schema-qualified name ("public.user_summary").
func pgFQN(fqn string) string {
	parts := splitFQN(fqn)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = pgIdent(p)
	}
	return strings.Join(quoted, ".")
}

// splitFQN converts "schema.table" into {"schema","table"}.
func splitFQN(fqn string) []string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
