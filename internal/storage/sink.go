package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"posimport/internal/pos"
	"posimport/internal/schema"
)

// Config is what a backend factory needs to open a sink.
//
// Edge cases:
//   - Kind must match a registered backend.
//   - DSN is passed through untouched; validation is backend-specific.
//   - Empty table names fall back to DefaultRawTable and DefaultCleanTable.
type Config struct {
	Kind string
	DSN  string

	RawTable   string
	CleanTable string

	// Schema defines the normalized table columns. Nil means schema.Default().
	Schema *schema.Schema
}

const (
	DefaultRawTable   = "pos_sales_raw"
	DefaultCleanTable = "pos_sales"
)

// WithDefaults fills empty optional fields.
func (c Config) WithDefaults() Config {
	if c.RawTable == "" {
		c.RawTable = DefaultRawTable
	}
	if c.CleanTable == "" {
		c.CleanTable = DefaultCleanTable
	}
	if c.Schema == nil {
		c.Schema = schema.Default()
	}
	return c
}

// Sink is the destination of imported rows: a raw archive table and a
// normalized table, both keyed by sale_id.
type Sink interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureTables creates both destination tables if they do not exist.
	// It never alters an existing table.
	EnsureTables(ctx context.Context) error

	// Begin opens a unit of work. Nothing is visible to other readers until
	// Commit.
	Begin(ctx context.Context) (Batch, error)
}

// Batch is one transaction spanning both tables.
//
// The expected sequence is LockKeys, SaleDates, UpsertRaw, UpsertClean and
// Commit. Rollback is safe to call after Commit and is then a no-op.
type Batch interface {
	// LockKeys serializes this transaction against others touching the same
	// keys until Commit or Rollback.
	LockKeys(ctx context.Context, keys []string) error

	// SaleDates returns the stored sale date of every key that already
	// exists in the normalized table. Keys not stored are absent from the map.
	SaleDates(ctx context.Context, keys []string) (map[string]sql.NullTime, error)

	// UpsertRaw inserts or fully replaces raw rows. Keys must be unique.
	UpsertRaw(ctx context.Context, rows []pos.RawRow) (int64, error)

	// UpsertClean inserts or fully replaces normalized rows. Keys must be unique.
	UpsertClean(ctx context.Context, rows []pos.CleanRow) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory opens a sink for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind.
//
// Call Register from an init() function in the backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered; ambiguous backend selection is a
//     programming error.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a sink using the factory registered for cfg.Kind.
//
// Errors:
//   - cfg.Kind is empty or unsupported.
//   - Whatever the factory returns.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg.WithDefaults())
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
