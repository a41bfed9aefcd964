// Package kvtest holds the conformance suite every kv.Store backend must pass.
package kvtest

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart/internal/kv"
)

// Run executes the conformance suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(context.Background(), "cart:nobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetGetDelete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "user:a", []byte(`{"id":"a"}`)))
		v, ok, err := s.Get(ctx, "user:a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"id":"a"}`, string(v))

		require.NoError(t, s.Set(ctx, "user:a", []byte(`{"id":"b"}`)))
		v, _, err = s.Get(ctx, "user:a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"b"}`, string(v))

		require.NoError(t, s.Delete(ctx, "user:a"))
		_, ok, err = s.Get(ctx, "user:a")
		require.NoError(t, err)
		assert.False(t, ok)

		// Deleting a missing key is not an error.
		require.NoError(t, s.Delete(ctx, "user:a"))
	})

	t.Run("ScanPrefix", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "orders:a", []byte(`[1]`)))
		require.NoError(t, s.Set(ctx, "orders:b", []byte(`[2]`)))
		require.NoError(t, s.Set(ctx, "cart:a", []byte(`{}`)))

		got, err := s.Scan(ctx, "orders:")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.JSONEq(t, `[1]`, string(got["orders:a"]))
		assert.JSONEq(t, `[2]`, string(got["orders:b"]))
	})

	t.Run("UpdateCreatesAndReplaces", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		err := s.Update(ctx, "stock:shared", func(cur []byte, exists bool) ([]byte, error) {
			assert.False(t, exists)
			assert.Nil(t, cur)
			return []byte(`1`), nil
		})
		require.NoError(t, err)

		err = s.Update(ctx, "stock:shared", func(cur []byte, exists bool) ([]byte, error) {
			assert.True(t, exists)
			n, _ := strconv.Atoi(string(cur))
			return []byte(strconv.Itoa(n + 1)), nil
		})
		require.NoError(t, err)

		v, _, err := s.Get(ctx, "stock:shared")
		require.NoError(t, err)
		assert.Equal(t, "2", string(v))
	})

	t.Run("UpdateAbortLeavesValue", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "stock:shared", []byte(`5`)))

		boom := errors.New("boom")
		err := s.Update(ctx, "stock:shared", func([]byte, bool) ([]byte, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)

		v, _, err := s.Get(ctx, "stock:shared")
		require.NoError(t, err)
		assert.Equal(t, "5", string(v))
	})

	t.Run("ConcurrentUpdatesDoNotLoseWrites", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "counter", []byte(`0`)))

		const workers = 8
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Update(ctx, "counter", func(cur []byte, _ bool) ([]byte, error) {
					n, err := strconv.Atoi(string(cur))
					if err != nil {
						return nil, err
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		v, _, err := s.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(workers), string(v))
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}
