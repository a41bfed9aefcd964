package cart

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart/internal/domain/coupon"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/product"
	"github.com/xenking/kart/internal/domain/stock"
)

// --- Mock implementations ---

type mockCartRepo struct {
	mu    sync.Mutex
	carts map[string]*Cart
	// afterGet runs once after the next Get, outside the lock.
	afterGet func()
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]*Cart)}
}

func (m *mockCartRepo) Get(_ context.Context, actorID string) (*Cart, error) {
	m.mu.Lock()
	c := m.load(actorID)
	hook := m.afterGet
	m.afterGet = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return c, nil
}

func (m *mockCartRepo) Update(_ context.Context, actorID string, fn func(c *Cart) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.load(actorID)
	if err := fn(c); err != nil {
		return err
	}
	m.carts[actorID] = c
	return nil
}

// load returns a deep copy so failed updates cannot leak mutations.
func (m *mockCartRepo) load(actorID string) *Cart {
	c, ok := m.carts[actorID]
	if !ok {
		return New(actorID)
	}
	b, _ := json.Marshal(c)
	out := New(actorID)
	_ = json.Unmarshal(b, out)
	return out
}

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Categories(_ context.Context) ([]product.Category, error) { return nil, nil }

type mockStock map[string]int64

func (m mockStock) Get(_ context.Context, id string) (int64, error) { return m[id], nil }

type mockActors map[string]identity.Actor

func (m mockActors) Actor(_ context.Context, id string) (identity.Actor, error) {
	if a, ok := m[id]; ok {
		return a, nil
	}
	return identity.Guest(), nil
}

// --- Helpers ---

type fixture struct {
	svc   *Service
	carts *mockCartRepo
	stock mockStock
}

func newFixture() *fixture {
	products := &mockProductRepo{byID: map[string]product.Product{
		"p1": {ID: "p1", Name: "Tee", Price: 1000, MemberPrice: 900, Sizes: []string{"S", "M"}},
		"p2": {ID: "p2", Name: "Mug", Price: 2500, MemberPrice: 2500},
	}}
	st := mockStock{"p1": 5, "p2": 10}
	actors := mockActors{
		"ann": {ID: "ann", Member: true, Points: 200},
	}
	carts := newMockCartRepo()
	svc := NewService(carts, products, st, actors, coupon.DefaultTable(), DefaultPolicy())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, carts: carts, stock: st}
}

// --- Tests ---

func TestAddLineItem_MergesSameLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 2, nil))
	require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 3, Options{}))

	c, err := f.svc.Get(ctx, "guest")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(5), c.Items[0].Quantity)
}

func TestAddLineItem_ExceedsStockKeepsQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 3, nil))
	err := f.svc.AddLineItem(ctx, "guest", "p1", 3, nil)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	c, _ := f.svc.Get(ctx, "guest")
	assert.Equal(t, int64(3), c.Quantity("p1", nil))
}

func TestAddLineItem_DifferentOptionsAreDifferentLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 1, Options{"size": "S"}))
	require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 1, Options{"size": "M"}))

	c, _ := f.svc.Get(ctx, "guest")
	assert.Len(t, c.Items, 2)

	// Stock pre-check is per line, so each line is checked on its own.
	require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 4, Options{"size": "S"}))
}

func TestAddLineItem_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.ErrorIs(t, f.svc.AddLineItem(ctx, "guest", "p1", 0, nil), ErrInvalidQuantity)

	var pnf *ProductNotFoundError
	require.ErrorAs(t, f.svc.AddLineItem(ctx, "guest", "missing", 1, nil), &pnf)
	assert.Equal(t, "missing", pnf.ProductID)

	var optErr *InvalidOptionError
	require.ErrorAs(t, f.svc.AddLineItem(ctx, "guest", "p1", 1, Options{"size": "XXL"}), &optErr)
	assert.Equal(t, "size", optErr.Option)

	c, _ := f.svc.Get(ctx, "guest")
	assert.True(t, c.IsEmpty())
}

func TestSetLineItemQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 2, nil))

	// Absolute quantity, not delta: 5 fits stock of 5 even though 2 are in the cart.
	require.NoError(t, f.svc.SetLineItemQuantity(ctx, "guest", "p1", 5, nil))
	c, _ := f.svc.Get(ctx, "guest")
	assert.Equal(t, int64(5), c.Quantity("p1", nil))

	require.ErrorIs(t, f.svc.SetLineItemQuantity(ctx, "guest", "p1", 6, nil), stock.ErrInsufficientStock)
	require.ErrorIs(t, f.svc.SetLineItemQuantity(ctx, "guest", "p2", 1, nil), ErrLineNotFound)

	require.NoError(t, f.svc.SetLineItemQuantity(ctx, "guest", "p1", -1, nil))
	c, _ = f.svc.Get(ctx, "guest")
	assert.True(t, c.IsEmpty())

	require.NoError(t, f.svc.RemoveLineItem(ctx, "guest", "p1", nil))
}

func TestApplyCoupon(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	rule, err := f.svc.ApplyCoupon(ctx, "guest", "welcome10")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", rule.Code)

	c, _ := f.svc.Get(ctx, "guest")
	assert.Equal(t, "WELCOME10", c.CouponCode)

	_, err = f.svc.ApplyCoupon(ctx, "guest", "bogus")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	c, _ = f.svc.Get(ctx, "guest")
	assert.Equal(t, "WELCOME10", c.CouponCode)

	require.NoError(t, f.svc.RemoveCoupon(ctx, "guest"))
	c, _ = f.svc.Get(ctx, "guest")
	assert.Empty(t, c.CouponCode)
}

func TestSetPointsUsed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.ErrorIs(t, f.svc.SetPointsUsed(ctx, "ann", 201), identity.ErrInsufficientPoints)
	require.ErrorIs(t, f.svc.SetPointsUsed(ctx, "ann", -1), ErrInvalidPoints)
	require.ErrorIs(t, f.svc.SetPointsUsed(ctx, "guest", 1), identity.ErrInsufficientPoints)

	require.NoError(t, f.svc.SetPointsUsed(ctx, "ann", 150))
	require.NoError(t, f.svc.SetPointsUsed(ctx, "ann", 100))
	c, _ := f.svc.Get(ctx, "ann")
	assert.Equal(t, int64(100), c.PointsUsed, "set overwrites, it does not accumulate")

	require.NoError(t, f.svc.ClearPointsUsed(ctx, "ann"))
	c, _ = f.svc.Get(ctx, "ann")
	assert.Zero(t, c.PointsUsed)
}

func TestTotals(t *testing.T) {
	ctx := context.Background()

	t.Run("regular price with shipping", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 3, nil))

		totals, err := f.svc.Totals(ctx, "guest")
		require.NoError(t, err)
		assert.Equal(t, Totals{Subtotal: 3000, Shipping: 500, Total: 3500}, totals)
	})

	t.Run("member price, points and members-only coupon", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.svc.AddLineItem(ctx, "ann", "p1", 2, nil))
		require.NoError(t, f.svc.AddLineItem(ctx, "ann", "p2", 2, nil))
		_, err := f.svc.ApplyCoupon(ctx, "ann", "member15")
		require.NoError(t, err)
		require.NoError(t, f.svc.SetPointsUsed(ctx, "ann", 200))

		totals, err := f.svc.Totals(ctx, "ann")
		require.NoError(t, err)
		// 2*900 + 2*2500 = 6800; 15% = 1020; free shipping.
		assert.Equal(t, int64(6800), totals.Subtotal)
		assert.Equal(t, int64(1020), totals.Discount)
		assert.Equal(t, int64(200), totals.PointsDiscount)
		assert.Zero(t, totals.Shipping)
		assert.Equal(t, int64(5580), totals.Total)
		assert.Equal(t, "MEMBER15", totals.CouponCode)
	})

	t.Run("members-only coupon gives guests nothing", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p2", 2, nil))
		_, err := f.svc.ApplyCoupon(ctx, "guest", "MEMBER15")
		require.NoError(t, err)

		totals, err := f.svc.Totals(ctx, "guest")
		require.NoError(t, err)
		assert.Zero(t, totals.Discount)
		assert.Equal(t, int64(5000), totals.Total)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.svc.AddLineItem(ctx, "guest", "p1", 1, nil))
		a, err := f.svc.Totals(ctx, "guest")
		require.NoError(t, err)
		b, err := f.svc.Totals(ctx, "guest")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestDisplayItems_SkipsMissingProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.svc.AddLineItem(ctx, "ann", "p1", 1, nil))
	f.carts.carts["ann"].Items = append(f.carts.carts["ann"].Items, LineItem{ProductID: "gone", Quantity: 1})

	lines, err := f.svc.DisplayItems(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1000), lines[0].Price)
	assert.Equal(t, int64(900), lines[0].AppliedPrice)
	assert.Equal(t, int64(900), lines[0].Subtotal)

	_, err = f.svc.Checkout(ctx, "ann")
	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
}

func TestItemCountAndClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.svc.AddLineItem(ctx, "ann", "p1", 2, nil))
	require.NoError(t, f.svc.AddLineItem(ctx, "ann", "p2", 3, nil))
	_, err := f.svc.ApplyCoupon(ctx, "ann", "SPRING20")
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPointsUsed(ctx, "ann", 10))

	n, err := f.svc.ItemCount(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	require.NoError(t, f.svc.Clear(ctx, "ann"))
	c, _ := f.svc.Get(ctx, "ann")
	assert.True(t, c.IsEmpty())
	assert.Empty(t, c.CouponCode)
	assert.Zero(t, c.PointsUsed)
}

func TestMigrateGuestCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	guestID := identity.GuestFor("tab-1")

	require.NoError(t, f.svc.AddLineItem(ctx, "ann", "p1", 2, nil))
	require.NoError(t, f.svc.AddLineItem(ctx, guestID, "p1", 3, nil))
	require.NoError(t, f.svc.AddLineItem(ctx, guestID, "p2", 1, nil))
	_, err := f.svc.ApplyCoupon(ctx, guestID, "WELCOME10")
	require.NoError(t, err)

	require.NoError(t, f.svc.MigrateGuestCart(ctx, guestID, "ann"))

	c, _ := f.svc.Get(ctx, "ann")
	require.Len(t, c.Items, 2)
	assert.Equal(t, int64(5), c.Quantity("p1", nil), "quantities are summed")
	assert.Equal(t, int64(1), c.Quantity("p2", nil))

	guest, _ := f.svc.Get(ctx, guestID)
	assert.True(t, guest.IsEmpty())
	assert.Empty(t, guest.CouponCode)

	// No stock re-validation: the merged line may exceed stock.
	f.stock["p1"] = 1
	require.NoError(t, f.svc.AddLineItem(ctx, guestID, "p1", 1, nil))
	require.NoError(t, f.svc.MigrateGuestCart(ctx, guestID, "ann"))
	c, _ = f.svc.Get(ctx, "ann")
	assert.Equal(t, int64(6), c.Quantity("p1", nil))
}

func TestMigrateGuestCart_OnlyCallersGuestCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.svc.AddLineItem(ctx, identity.GuestFor("mine"), "p1", 1, nil))
	require.NoError(t, f.svc.AddLineItem(ctx, identity.GuestFor("other"), "p2", 4, nil))

	require.NoError(t, f.svc.MigrateGuestCart(ctx, identity.GuestFor("mine"), "ann"))

	c, _ := f.svc.Get(ctx, "ann")
	assert.Equal(t, int64(1), c.Quantity("p1", nil))
	assert.Zero(t, c.Quantity("p2", nil))

	other, _ := f.svc.Get(ctx, identity.GuestFor("other"))
	assert.Equal(t, int64(4), other.Quantity("p2", nil))
}

func TestMigrateGuestCart_KeepsLinesAddedDuringMigration(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	guestID := identity.GuestFor("tab-1")

	require.NoError(t, f.svc.AddLineItem(ctx, guestID, "p1", 2, nil))
	f.carts.afterGet = func() {
		require.NoError(t, f.svc.AddLineItem(ctx, guestID, "p1", 1, nil))
		require.NoError(t, f.svc.AddLineItem(ctx, guestID, "p2", 3, nil))
	}

	require.NoError(t, f.svc.MigrateGuestCart(ctx, guestID, "ann"))

	c, _ := f.svc.Get(ctx, "ann")
	assert.Equal(t, int64(2), c.Quantity("p1", nil))
	assert.Zero(t, c.Quantity("p2", nil))

	guest, _ := f.svc.Get(ctx, guestID)
	assert.Equal(t, int64(1), guest.Quantity("p1", nil))
	assert.Equal(t, int64(3), guest.Quantity("p2", nil))
}

func TestMigrateGuestCart_GuestIsNoop(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.svc.AddLineItem(context.Background(), identity.GuestID, "p1", 1, nil))
	require.NoError(t, f.svc.MigrateGuestCart(context.Background(), identity.GuestID, identity.GuestFor("x")))

	c, _ := f.svc.Get(context.Background(), identity.GuestID)
	assert.Len(t, c.Items, 1)
}

func TestAddLineItem_QuantityOverflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.svc.AddLineItem(ctx, "ann", "p1", 1, nil))
	err := f.svc.AddLineItem(ctx, "ann", "p1", math.MaxInt64, nil)

	var isErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, int64(math.MaxInt64), isErr.Requested)
	assert.Equal(t, int64(5), isErr.Available)

	c, _ := f.svc.Get(ctx, "ann")
	assert.Equal(t, int64(1), c.Quantity("p1", nil))
	assert.Equal(t, int64(1), c.ItemCount())
}

func TestMerge_Saturates(t *testing.T) {
	c := New("ann")
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c.Merge("p1", 2, nil, now)
	c.Merge("p1", math.MaxInt64, nil, now)

	assert.Equal(t, int64(math.MaxInt64), c.Quantity("p1", nil))
}

func TestOptionsKey(t *testing.T) {
	a := Options{"size": "M", "color": "red"}
	b := Options{"color": "red", "size": "M"}
	assert.Equal(t, a.Key(), b.Key())
	assert.Empty(t, Options(nil).Key())
	assert.Equal(t, Options{}.Key(), Options(nil).Key())
	assert.NotEqual(t, a.Key(), Options{"size": "S", "color": "red"}.Key())
}

func TestUpdate_WrapsStoreErrors(t *testing.T) {
	f := newFixture()
	f.svc.carts = failingRepo{}
	err := f.svc.Clear(context.Background(), "ann")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update cart")
}

type failingRepo struct{}

func (failingRepo) Get(context.Context, string) (*Cart, error) { return nil, errors.New("down") }

func (failingRepo) Update(context.Context, string, func(*Cart) error) error {
	return errors.New("down")
}
