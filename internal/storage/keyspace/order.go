package keyspace

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/kart/internal/domain/order"
	"github.com/xenking/kart/internal/kv"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores each actor's orders as one list under orders:<actorId>.
type OrderRepository struct {
	store kv.Store
}

// NewOrderRepository returns an OrderRepository on store.
func NewOrderRepository(store kv.Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// List returns the actor's orders in creation order.
func (r *OrderRepository) List(ctx context.Context, actorID string) ([]order.Order, error) {
	var orders []order.Order
	if _, err := getJSON(ctx, r.store, kv.OrdersKey(actorID), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Append adds o to the end of the actor's list.
func (r *OrderRepository) Append(ctx context.Context, o *order.Order) error {
	init := func() *[]order.Order { return &[]order.Order{} }
	return updateJSON(ctx, r.store, kv.OrdersKey(o.ActorID), init, func(list *[]order.Order, _ bool) error {
		if slices.ContainsFunc(*list, func(x order.Order) bool { return x.ID == o.ID }) {
			return order.ErrDuplicateID
		}
		*list = append(*list, *o)
		return nil
	})
}

// Update applies fn to one order atomically and returns the stored copy.
func (r *OrderRepository) Update(ctx context.Context, actorID, orderID string, fn func(o *order.Order) error) (*order.Order, error) {
	var updated order.Order
	init := func() *[]order.Order { return &[]order.Order{} }
	err := updateJSON(ctx, r.store, kv.OrdersKey(actorID), init, func(list *[]order.Order, _ bool) error {
		i := slices.IndexFunc(*list, func(x order.Order) bool { return x.ID == orderID })
		if i < 0 {
			return order.ErrNotFound
		}
		if err := fn(&(*list)[i]); err != nil {
			return err
		}
		updated = (*list)[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// All scans every orders:* key. Actor ids come from the key so a record
// missing its actorId is still attributed.
func (r *OrderRepository) All(ctx context.Context) ([]order.Order, error) {
	raw, err := r.store.Scan(ctx, kv.OrdersPrefix())
	if err != nil {
		return nil, err
	}

	var all []order.Order
	for key, v := range raw {
		var list []order.Order
		if err := json.Unmarshal(v, &list); err != nil {
			return nil, errors.Wrapf(err, "decode %q", key)
		}
		actorID := kv.ActorFromOrdersKey(key)
		for i := range list {
			if list[i].ActorID == "" {
				list[i].ActorID = actorID
			}
		}
		all = append(all, list...)
	}
	slices.SortStableFunc(all, func(a, b order.Order) int { return a.OrderDate.Compare(b.OrderDate) })
	return all, nil
}
