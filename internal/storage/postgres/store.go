// Package postgres implements kv.Store on a PostgreSQL table.
package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart/db"
	"github.com/xenking/kart/internal/kv"
)

const (
	getSQL    = `SELECT value FROM kv_entries WHERE key = $1`
	lockSQL   = `SELECT value FROM kv_entries WHERE key = $1 FOR UPDATE`
	upsertSQL = `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	insertSQL = `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO NOTHING`
	updateSQL = `UPDATE kv_entries SET value = $2, updated_at = now() WHERE key = $1`
	deleteSQL = `DELETE FROM kv_entries WHERE key = $1`
	scanSQL   = `SELECT key, value FROM kv_entries WHERE starts_with(key, $1)`
)

var _ kv.Store = (*Store)(nil)

// Store is a kv.Store backed by the kv_entries table.
type Store struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPool creates a pgxpool.Pool from a connection URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Open connects, migrates and returns a Store that owns the pool.
func Open(ctx context.Context, databaseURL, namespace string) (*Store, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool, namespace), nil
}

// New wraps an existing pool. The schema must already exist.
func New(pool *pgxpool.Pool, namespace string) *Store {
	return &Store{pool: pool, namespace: namespace}
}

func (s *Store) key(k string) string { return kv.Namespaced(s.namespace, k) }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.pool.QueryRow(ctx, getSQL, s.key(key)).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.pool.Exec(ctx, upsertSQL, s.key(key), value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, deleteSQL, s.key(key)); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

type entry struct {
	Key   string
	Value []byte
}

func (s *Store) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.pool.Query(ctx, scanSQL, s.key(prefix))
	if err != nil {
		return nil, fmt.Errorf("scanning %q: %w", prefix, err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[entry])
	if err != nil {
		return nil, fmt.Errorf("scanning %q: %w", prefix, err)
	}

	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		out[kv.StripNamespace(s.namespace, e.Key)] = e.Value
	}
	return out, nil
}

// errRaced signals that a concurrent insert created the row first.
var errRaced = errors.New("row created concurrently")

// Update locks the row for the duration of fn. Missing rows cannot be
// locked, so their first insert uses ON CONFLICT DO NOTHING and retries when
// another transaction won.
func (s *Store) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	k := s.key(key)
	for range kv.MaxRetries {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var cur []byte
			exists := true
			if err := tx.QueryRow(ctx, lockSQL, k).Scan(&cur); err != nil {
				if !errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("locking %q: %w", key, err)
				}
				cur, exists = nil, false
			}

			next, err := fn(cur, exists)
			if err != nil {
				return err
			}

			if exists {
				_, err = tx.Exec(ctx, updateSQL, k, next)
				return err
			}
			tag, err := tx.Exec(ctx, insertSQL, k, next)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return errRaced
			}
			return nil
		})
		if errors.Is(err, errRaced) {
			continue
		}
		return err
	}
	return errors.Wrapf(kv.ErrConflict, "update %q", key)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
