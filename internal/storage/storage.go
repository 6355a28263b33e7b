// Package storage contains storage-agnostic contracts and the backend
// factory. Concrete backends (sqlite, postgres, mssql) live in subpackages
// and register themselves at init time; importing storage/all (usually as a
// blank import in the wiring layer) makes every built-in backend available.
package storage

import (
	"context"
	"fmt"
	"sync"
)

// Column kinds understood by every backend. Backends map these onto their
// native SQL types when creating the summary table.
const (
	KindText    = "text"
	KindInteger = "integer"
	KindReal    = "real"
	KindBool    = "bool"
	KindDate    = "date"
)

// Column describes one column of the summary table in backend-neutral terms.
type Column struct {
	Name    string
	Kind    string
	NotNull bool
}

// Config selects and configures a backend.
type Config struct {
	Kind  string // "sqlite", "postgres", "mssql"
	DSN   string
	Table string // target table; staging derives from it
}

// Repository is the minimal sink contract the pipeline needs. The publish
// sequence is: RecreateTable(staging) → CopyFrom(staging, ...) →
// SwapTables(staging, target). SwapTables must be atomic: a reader never
// observes a partially-built summary, and a failed run leaves the previous
// target table untouched.
type Repository interface {
	// RecreateTable drops the table if it exists and creates it fresh.
	RecreateTable(ctx context.Context, table string, cols []Column) error

	// CopyFrom bulk-inserts rows (aligned to columns order) into table and
	// returns the number of rows inserted.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// SwapTables atomically replaces target with staging (rename in one
	// transaction) and drops the previous target.
	SwapTables(ctx context.Context, staging, target string) error

	// Exec runs an arbitrary statement (typically DDL).
	Exec(ctx context.Context, sql string) error

	Close()
}

// Factory constructs a Repository for one storage kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for a storage kind. It is
// typically called from backend packages' init functions.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a Repository for cfg.Kind. Unknown kinds are an error listing
// nothing magic: only what was registered (see storage/all).
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage kind %q (is the backend imported?)", cfg.Kind)
	}
	return f(ctx, cfg)
}

// StagingTable derives the staging table name for a target table.
func StagingTable(target string) string { return target + "__staging" }
