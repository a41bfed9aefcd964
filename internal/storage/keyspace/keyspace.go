// Package keyspace implements the domain repositories on any kv.Store using
// the storefront key layout (user:, cart:, orders:, stock:shared, session:).
package keyspace

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"github.com/xenking/kart/internal/kv"
)

func getJSON(ctx context.Context, store kv.Store, key string, dst any) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, errors.Wrapf(err, "decode %q", key)
	}
	return true, nil
}

func setJSON(ctx context.Context, store kv.Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}
	return store.Set(ctx, key, raw)
}

// updateJSON decodes the current value into a fresh T (zero when missing),
// applies fn and stores the result atomically.
func updateJSON[T any](ctx context.Context, store kv.Store, key string, init func() *T, fn func(v *T, exists bool) error) error {
	return store.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
		v := init()
		if exists {
			if err := json.Unmarshal(cur, v); err != nil {
				return nil, errors.Wrapf(err, "decode %q", key)
			}
		}
		if err := fn(v, exists); err != nil {
			return nil, err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %q", key)
		}
		return out, nil
	})
}
