// Package postgres provides a Postgres-backed kv.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tangentleman/docpull/internal/kv"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool backing the store.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store persists namespaced key-value pairs in a single Postgres table.
// Update runs inside a transaction with a row lock, which gives concurrent
// workers the atomic read-modify-write the job registry depends on.
type Store struct {
	pool  pgxConn
	table string
}

// NewStore connects a pool and returns a Store using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "docpull_kv"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool pgxConn, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "docpull_kv"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Get returns the value for key, or kv.ErrNotFound.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE namespace = $1 AND key = $2`, s.table)
	var value []byte
	err := s.pool.QueryRow(ctx, query, namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select value: %w", err)
	}
	return value, nil
}

// Set upserts the value unconditionally.
func (s *Store) Set(ctx context.Context, namespace, key string, value []byte) error {
	query := fmt.Sprintf(`
INSERT INTO %s (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, namespace, key, value); err != nil {
		return fmt.Errorf("upsert value: %w", err)
	}
	return nil
}

// Delete removes the key. Deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND key = $2`, s.table)
	if _, err := s.pool.Exec(ctx, query, namespace, key); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}

// Update applies fn while holding a row lock on the key, so concurrent
// read-modify-writes serialize instead of losing updates.
func (s *Store) Update(ctx context.Context, namespace, key string, fn kv.UpdateFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx)
	}()

	// Reserve the key with a NULL placeholder so two transactions creating
	// the same key serialize on the row instead of both seeing it absent.
	// The placeholder never outlives the transaction: it is overwritten,
	// deleted, or rolled back below.
	reserveQuery := fmt.Sprintf(`
INSERT INTO %s (namespace, key, value, updated_at)
VALUES ($1, $2, NULL, now())
ON CONFLICT (namespace, key) DO NOTHING`, s.table)
	if _, err := tx.Exec(ctx, reserveQuery, namespace, key); err != nil {
		return fmt.Errorf("reserve key: %w", err)
	}

	selectQuery := fmt.Sprintf(
		`SELECT value FROM %s WHERE namespace = $1 AND key = $2 FOR UPDATE`, s.table)
	var current []byte
	if err := tx.QueryRow(ctx, selectQuery, namespace, key).Scan(&current); err != nil {
		return fmt.Errorf("lock value: %w", err)
	}
	exists := current != nil

	next, err := fn(current, exists)
	if err != nil {
		return err
	}

	if next == nil {
		deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND key = $2`, s.table)
		if _, err := tx.Exec(ctx, deleteQuery, namespace, key); err != nil {
			return fmt.Errorf("delete value: %w", err)
		}
	} else {
		upsertQuery := fmt.Sprintf(`
INSERT INTO %s (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, s.table)
		if _, err := tx.Exec(ctx, upsertQuery, namespace, key, next); err != nil {
			return fmt.Errorf("upsert value: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}
