package order_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart/internal/catalog"
	"github.com/xenking/kart/internal/domain/cart"
	"github.com/xenking/kart/internal/domain/coupon"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/order"
	"github.com/xenking/kart/internal/domain/stock"
	"github.com/xenking/kart/internal/orderid"
	"github.com/xenking/kart/internal/storage/keyspace"
	"github.com/xenking/kart/internal/storage/memory"
)

// shop wires the real engines over an in-memory store.
type shop struct {
	users    *keyspace.UserRepository
	identity *identity.Service
	stock    *stock.Service
	carts    *cart.Service
	orders   *order.Service
}

const testCatalog = `{
  "categories": [{"id": "apparel", "name": "Apparel"}],
  "products": [
    {"id": "p1", "name": "Tee", "price": 1000, "category": "apparel", "initialStock": 5},
    {"id": "p2", "name": "Mug", "price": 2500, "category": "apparel", "initialStock": 1}
  ]
}`

func newShop(t *testing.T, policy cart.Policy) *shop {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	products, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	s := &shop{users: keyspace.NewUserRepository(store)}
	s.identity = identity.NewService(s.users, keyspace.NewSessionRepository(store))
	s.stock = stock.NewService(keyspace.NewStockRepository(store))
	s.carts = cart.NewService(
		keyspace.NewCartRepository(store), products, s.stock, s.identity,
		coupon.DefaultTable(), policy,
	)
	s.orders = order.NewService(
		keyspace.NewOrderRepository(store), s.carts, s.stock, s.identity,
		orderid.New(1000, 0.001),
	)

	_, err = s.stock.Initialize(ctx, products.StockSource())
	require.NoError(t, err)
	return s
}

func (s *shop) addUser(t *testing.T, id string, points int64) {
	t.Helper()
	require.NoError(t, s.users.Put(context.Background(), &identity.User{
		ID: id, Name: id, Email: id + "@example.com", Points: points,
	}))
}

func (s *shop) stockOf(t *testing.T, productID string) int64 {
	t.Helper()
	q, err := s.stock.Get(context.Background(), productID)
	require.NoError(t, err)
	return q
}

func (s *shop) pointsOf(t *testing.T, actorID string) int64 {
	t.Helper()
	p, err := s.identity.Balance(context.Background(), actorID)
	require.NoError(t, err)
	return p
}

func checkout(actorID string) order.CreateRequest {
	return order.CreateRequest{
		ActorID:         actorID,
		PaymentMethod:   "card",
		ShippingAddress: order.Address{Recipient: actorID, Line1: "1 Main St", City: "Springfield"},
	}
}

func TestScenario_CheckoutDecrementsStock(t *testing.T) {
	ctx := context.Background()
	s := newShop(t, cart.DefaultPolicy())
	s.addUser(t, "alice", 0)

	require.Equal(t, int64(5), s.stockOf(t, "p1"))

	t.Run("guest cannot check out", func(t *testing.T) {
		require.NoError(t, s.carts.AddLineItem(ctx, identity.GuestID, "p1", 3, nil))
		totals, err := s.carts.Totals(ctx, identity.GuestID)
		require.NoError(t, err)
		assert.Equal(t, int64(3500), totals.Total)

		_, err = s.orders.Create(ctx, checkout(identity.GuestID))
		require.ErrorIs(t, err, order.ErrGuestCheckout)
		assert.Equal(t, int64(5), s.stockOf(t, "p1"))
	})

	require.NoError(t, s.carts.AddLineItem(ctx, "alice", "p1", 3, nil))
	totals, err := s.carts.Totals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), totals.Subtotal)
	assert.Equal(t, int64(500), totals.Shipping)
	assert.Equal(t, int64(3500), totals.Total)

	o, err := s.orders.Create(ctx, checkout("alice"))
	require.NoError(t, err)

	assert.Equal(t, int64(3500), o.Total)
	assert.Equal(t, int64(2), s.stockOf(t, "p1"))
	c, err := s.carts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, int64(35), s.pointsOf(t, "alice"))
}

func TestScenario_RedeemThenCancel(t *testing.T) {
	ctx := context.Background()
	s := newShop(t, cart.Policy{FreeShippingThreshold: 1000, ShippingFee: 500})
	s.addUser(t, "alice", 200)

	require.NoError(t, s.carts.AddLineItem(ctx, "alice", "p1", 1, nil))
	require.NoError(t, s.carts.SetPointsUsed(ctx, "alice", 200))

	totals, err := s.carts.Totals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.Shipping)
	assert.Equal(t, int64(800), totals.Total)

	o, err := s.orders.Create(ctx, checkout("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(800), o.Total)
	assert.Equal(t, int64(200), o.PointsUsed)
	assert.Equal(t, int64(8), o.PointsEarned)
	assert.Equal(t, int64(8), s.pointsOf(t, "alice"))
	assert.Equal(t, int64(4), s.stockOf(t, "p1"))

	res, err := s.orders.Cancel(ctx, "alice", o.ID)
	require.NoError(t, err)
	assert.False(t, res.Degraded())
	assert.Equal(t, order.StatusCancelled, res.Order.Status)
	assert.Equal(t, int64(5), s.stockOf(t, "p1"))
	assert.Equal(t, int64(200), s.pointsOf(t, "alice"))

	_, err = s.orders.Cancel(ctx, "alice", o.ID)
	var trErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, int64(5), s.stockOf(t, "p1"))

	stored, err := s.orders.Get(ctx, "alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, stored.Status)
}

func TestScenario_MultiItemOrderIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newShop(t, cart.DefaultPolicy())
	s.addUser(t, "alice", 0)
	s.addUser(t, "bob", 0)

	require.NoError(t, s.carts.AddLineItem(ctx, "alice", "p1", 2, nil))
	require.NoError(t, s.carts.AddLineItem(ctx, "alice", "p2", 1, nil))

	// bob takes the last p2 between alice's pre-check and her checkout.
	require.NoError(t, s.carts.AddLineItem(ctx, "bob", "p2", 1, nil))
	_, err := s.orders.Create(ctx, checkout("bob"))
	require.NoError(t, err)

	_, err = s.orders.Create(ctx, checkout("alice"))
	var stockErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p2", stockErr.ProductID)

	assert.Equal(t, int64(5), s.stockOf(t, "p1"))
	assert.Equal(t, int64(0), s.stockOf(t, "p2"))
	orders, err := s.orders.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
	c, err := s.carts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestScenario_CancelAfterShipFails(t *testing.T) {
	ctx := context.Background()
	s := newShop(t, cart.DefaultPolicy())
	s.addUser(t, "alice", 0)

	require.NoError(t, s.carts.AddLineItem(ctx, "alice", "p1", 2, nil))
	o, err := s.orders.Create(ctx, checkout("alice"))
	require.NoError(t, err)

	for _, st := range []order.Status{order.StatusProcessing, order.StatusShipped} {
		_, err = s.orders.UpdateStatus(ctx, "alice", o.ID, st)
		require.NoError(t, err)
	}

	_, err = s.orders.Cancel(ctx, "alice", o.ID)
	var trErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, int64(3), s.stockOf(t, "p1"))

	stored, err := s.orders.Get(ctx, "alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, stored.Status)
}
