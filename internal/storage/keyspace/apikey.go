package keyspace

import (
	"context"
	"fmt"

	"github.com/xenking/kart/internal/domain/auth"
	"github.com/xenking/kart/internal/kv"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository stores admin API keys under apikey:<hash>.
type APIKeyRepository struct {
	store kv.Store
}

// NewAPIKeyRepository returns an APIKeyRepository on store.
func NewAPIKeyRepository(store kv.Store) *APIKeyRepository {
	return &APIKeyRepository{store: store}
}

// FindByHash looks up an API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	ok, err := getJSON(ctx, r.store, kv.APIKeyKey(hash), &info)
	if err != nil {
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &info, nil
}

// Put stores an API key record under its hash.
func (r *APIKeyRepository) Put(ctx context.Context, info *auth.APIKeyInfo) error {
	return setJSON(ctx, r.store, kv.APIKeyKey(info.KeyHash), info)
}
