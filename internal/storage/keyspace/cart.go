package keyspace

import (
	"context"

	"github.com/xenking/kart/internal/domain/cart"
	"github.com/xenking/kart/internal/kv"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores one cart per actor under cart:<actorId>.
type CartRepository struct {
	store kv.Store
}

// NewCartRepository returns a CartRepository on store.
func NewCartRepository(store kv.Store) *CartRepository {
	return &CartRepository{store: store}
}

// Get returns the stored cart or a new empty one.
func (r *CartRepository) Get(ctx context.Context, actorID string) (*cart.Cart, error) {
	c := cart.New(actorID)
	if _, err := getJSON(ctx, r.store, kv.CartKey(actorID), c); err != nil {
		return nil, err
	}
	return normalizeCart(c, actorID), nil
}

// Update applies fn to the current cart atomically.
func (r *CartRepository) Update(ctx context.Context, actorID string, fn func(c *cart.Cart) error) error {
	init := func() *cart.Cart { return cart.New(actorID) }
	return updateJSON(ctx, r.store, kv.CartKey(actorID), init, func(c *cart.Cart, _ bool) error {
		return fn(normalizeCart(c, actorID))
	})
}

func normalizeCart(c *cart.Cart, actorID string) *cart.Cart {
	c.ActorID = actorID
	if c.Items == nil {
		c.Items = []cart.LineItem{}
	}
	return c
}
