// Package kv defines the key-value store contract every persistence backend
// implements, plus the key space shared by the repositories.
package kv

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrConflict is returned by backends when an optimistic update lost a race
// and retries were exhausted.
var ErrConflict = errors.New("kv: concurrent update conflict")

// UpdateFunc receives the current value of a key and returns the value to
// store. Returning an error aborts the update without writing.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is a namespaced key-value store.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is missing.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scan returns every key with the given prefix. Keys in the result are
	// un-namespaced, as passed to Set.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
	// Update atomically replaces the value under key with the result of fn.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// MaxRetries bounds optimistic retry loops in backends that implement Update
// with compare-and-swap.
const MaxRetries = 16
