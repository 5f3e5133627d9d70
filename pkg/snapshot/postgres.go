package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of *pgxpool.Pool the store uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps blobs in a PostgreSQL table:
//
//	CREATE TABLE sharedpaint_snapshots (
//	    name TEXT PRIMARY KEY,
//	    blob BYTEA NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresStore struct {
	pool  PgxPool
	table string
	owned bool
}

// PostgresStoreOption configures PostgresStore behavior.
type PostgresStoreOption func(*PostgresStore)

// WithPostgresTable sets the table name.
// Default: "sharedpaint_snapshots".
func WithPostgresTable(name string) PostgresStoreOption {
	return func(p *PostgresStore) { p.table = name }
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewPostgresStore wraps an existing pool. Close does not close it.
func NewPostgresStore(pool PgxPool, opts ...PostgresStoreOption) (*PostgresStore, error) {
	p := &PostgresStore{pool: pool, table: "sharedpaint_snapshots"}
	for _, opt := range opts {
		opt(p)
	}
	if !tableName.MatchString(p.table) {
		return nil, fmt.Errorf("snapshot: invalid table name %q", p.table)
	}
	return p, nil
}

// OpenPostgresStore connects to dsn and creates the table if needed.
func OpenPostgresStore(ctx context.Context, dsn string, opts ...PostgresStoreOption) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: connect postgres: %w", err)
	}
	p, err := NewPostgresStore(pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	p.owned = true
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			blob BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table))
	return err
}

// Save upserts blob under name.
func (p *PostgresStore) Save(ctx context.Context, name string, blob []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, blob, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()`, p.table),
		name, blob)
	return err
}

// Load returns the blob saved under name.
func (p *PostgresStore) Load(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT blob FROM %s WHERE name = $1`, p.table), name).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return blob, err
}

// Delete removes name.
func (p *PostgresStore) Delete(ctx context.Context, name string) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, p.table), name)
	return err
}

// List returns the stored names.
func (p *PostgresStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := p.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COALESCE(array_agg(name ORDER BY name), '{}') FROM %s`, p.table)).Scan(&names)
	return names, err
}

// Close closes the pool if the store opened it.
func (p *PostgresStore) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}
