// Package redis implements kv.Store on top of Redis.
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart/internal/kv"
)

var _ kv.Store = (*Store)(nil)

const scanBatch = 256

// Store is a kv.Store backed by a single Redis client. Every key is
// prefixed with the configured namespace.
type Store struct {
	raw       *redis.Client
	namespace string
}

// Open parses a redis:// URL, connects and verifies connectivity.
func Open(ctx context.Context, url, namespace string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return New(raw, namespace), nil
}

// New wraps an existing client.
func New(raw *redis.Client, namespace string) *Store {
	return &Store{raw: raw, namespace: namespace}
}

func (s *Store) key(k string) string { return kv.Namespaced(s.namespace, k) }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.raw.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %q", key)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.raw.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.raw.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	var keys []string
	iter := s.raw.Scan(ctx, 0, escapeGlob(s.key(prefix))+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %q", prefix)
	}

	out := make(map[string][]byte, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		batch := keys[start:min(start+scanBatch, len(keys))]
		vals, err := s.raw.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "mget %q", prefix)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				// Deleted between SCAN and MGET.
				continue
			}
			out[kv.StripNamespace(s.namespace, batch[i])] = []byte(str)
		}
	}
	return out, nil
}

// Update runs fn under WATCH and commits with MULTI/EXEC, retrying when
// another client modified the key in between.
func (s *Store) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	k := s.key(key)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			cur, exists = nil, false
		} else if err != nil {
			return errors.Wrapf(err, "get %q", key)
		}

		next, err := fn(cur, exists)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for attempt := range kv.MaxRetries {
		err := s.raw.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Millisecond):
		}
	}
	return errors.Wrapf(kv.ErrConflict, "update %q", key)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.raw.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.raw.Close()
}

func escapeGlob(p string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(p)
}
