package cart

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart/internal/domain/coupon"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/product"
	"github.com/xenking/kart/internal/domain/stock"
)

// StockReader reads remaining quantity from the shared ledger.
type StockReader interface {
	Get(ctx context.Context, productID string) (int64, error)
}

// ActorReader loads an actor profile; unknown ids resolve to the guest.
type ActorReader interface {
	Actor(ctx context.Context, actorID string) (identity.Actor, error)
}

// Service is the cart engine: one cart per actor plus its priced projection.
type Service struct {
	carts    Repository
	products product.Repository
	stock    StockReader
	actors   ActorReader
	coupons  *coupon.Table
	policy   Policy
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(
	carts Repository,
	products product.Repository,
	stock StockReader,
	actors ActorReader,
	coupons *coupon.Table,
	policy Policy,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		stock:    stock,
		actors:   actors,
		coupons:  coupons,
		policy:   policy,
		now:      time.Now,
	}
}

// Policy returns the shipping policy used for totals.
func (s *Service) Policy() Policy { return s.policy }

// Coupons returns the coupon allow-list.
func (s *Service) Coupons() *coupon.Table { return s.coupons }

// Get returns the actor's cart, empty when none is stored.
func (s *Service) Get(ctx context.Context, actorID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, actorID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddLineItem adds qty of a product to the cart, merging with an existing
// line that has the same options. The combined quantity is checked against
// current stock; this is a pre-check, not a reservation.
func (s *Service) AddLineItem(ctx context.Context, actorID, productID string, qty int64, opts Options) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := s.checkProduct(ctx, productID, opts); err != nil {
		return err
	}
	available, err := s.stock.Get(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "get stock")
	}

	return s.update(ctx, actorID, func(c *Cart) error {
		have := c.Quantity(productID, opts)
		if qty > available-have {
			return &stock.InsufficientStockError{ProductID: productID, Requested: addQuantity(have, qty), Available: available}
		}
		c.Merge(productID, qty, opts, s.now())
		return nil
	})
}

// SetLineItemQuantity sets the absolute quantity of a line. qty <= 0
// removes the line; otherwise qty itself is checked against stock.
func (s *Service) SetLineItemQuantity(ctx context.Context, actorID, productID string, qty int64, opts Options) error {
	if qty <= 0 {
		return s.update(ctx, actorID, func(c *Cart) error {
			c.SetQuantity(productID, 0, opts)
			return nil
		})
	}

	available, err := s.stock.Get(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "get stock")
	}
	return s.update(ctx, actorID, func(c *Cart) error {
		if qty > available {
			return &stock.InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
		}
		if !c.SetQuantity(productID, qty, opts) {
			return ErrLineNotFound
		}
		return nil
	})
}

// RemoveLineItem removes a line. Removing an absent line is a no-op.
func (s *Service) RemoveLineItem(ctx context.Context, actorID, productID string, opts Options) error {
	return s.SetLineItemQuantity(ctx, actorID, productID, 0, opts)
}

// Clear empties line items, clears the coupon and resets points to 0.
func (s *Service) Clear(ctx context.Context, actorID string) error {
	return s.update(ctx, actorID, func(c *Cart) error {
		c.Reset()
		return nil
	})
}

// ApplyCoupon stores the normalized code when it is on the allow-list.
// Unknown codes fail and leave the cart untouched.
func (s *Service) ApplyCoupon(ctx context.Context, actorID, code string) (coupon.Rule, error) {
	rule, err := s.coupons.Lookup(code)
	if err != nil {
		return coupon.Rule{}, err
	}
	err = s.update(ctx, actorID, func(c *Cart) error {
		c.CouponCode = rule.Code
		return nil
	})
	if err != nil {
		return coupon.Rule{}, err
	}
	return rule, nil
}

// RemoveCoupon clears the cart's coupon code.
func (s *Service) RemoveCoupon(ctx context.Context, actorID string) error {
	return s.update(ctx, actorID, func(c *Cart) error {
		c.CouponCode = ""
		return nil
	})
}

// SetPointsUsed overwrites the points to redeem. It fails when points
// exceed the actor's balance.
func (s *Service) SetPointsUsed(ctx context.Context, actorID string, points int64) error {
	if points < 0 {
		return ErrInvalidPoints
	}
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return errors.Wrap(err, "get actor")
	}
	if points > actor.Points {
		return identity.ErrInsufficientPoints
	}
	return s.update(ctx, actorID, func(c *Cart) error {
		c.PointsUsed = points
		return nil
	})
}

// ClearPointsUsed resets the points to redeem to 0.
func (s *Service) ClearPointsUsed(ctx context.Context, actorID string) error {
	return s.update(ctx, actorID, func(c *Cart) error {
		c.PointsUsed = 0
		return nil
	})
}

// ItemCount sums quantities across the cart's line items.
func (s *Service) ItemCount(ctx context.Context, actorID string) (int64, error) {
	c, err := s.Get(ctx, actorID)
	if err != nil {
		return 0, err
	}
	return c.ItemCount(), nil
}

// Quote is a cart priced for a specific actor.
type Quote struct {
	Cart   *Cart
	Lines  []PricedLine
	Totals Totals
}

// DisplayItems joins each line with its product at the actor's price basis.
// Lines whose product has left the catalog are skipped.
func (s *Service) DisplayItems(ctx context.Context, actorID string) ([]PricedLine, error) {
	q, err := s.quote(ctx, actorID, false)
	if err != nil {
		return nil, err
	}
	return q.Lines, nil
}

// Totals computes subtotal, discount, points, shipping and total.
func (s *Service) Totals(ctx context.Context, actorID string) (Totals, error) {
	q, err := s.quote(ctx, actorID, false)
	if err != nil {
		return Totals{}, err
	}
	return q.Totals, nil
}

// View returns the priced cart for display.
func (s *Service) View(ctx context.Context, actorID string) (*Quote, error) {
	return s.quote(ctx, actorID, false)
}

// Checkout prices the cart for order creation. Unlike View it fails with
// *ProductNotFoundError when a line's product is gone.
func (s *Service) Checkout(ctx context.Context, actorID string) (*Quote, error) {
	return s.quote(ctx, actorID, true)
}

func (s *Service) quote(ctx context.Context, actorID string, strict bool) (*Quote, error) {
	c, err := s.Get(ctx, actorID)
	if err != nil {
		return nil, err
	}
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return nil, errors.Wrap(err, "get actor")
	}

	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		if !slices.Contains(ids, it.ProductID) {
			ids = append(ids, it.ProductID)
		}
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]PricedLine, 0, len(c.Items))
	for _, it := range c.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			if strict {
				return nil, &ProductNotFoundError{ProductID: it.ProductID}
			}
			continue
		}
		lines = append(lines, PriceLine(it, p, actor.Member))
	}

	subtotal := Subtotal(lines)
	var discount coupon.Discount
	if c.CouponCode != "" {
		discount, err = s.coupons.Discount(c.CouponCode, subtotal, actor.Member)
		if err != nil {
			// A code removed from the allow-list no longer discounts.
			zctx.From(ctx).Warn("Stored coupon not recognized",
				zap.String("actor", actorID),
				zap.String("coupon", c.CouponCode),
			)
			discount = coupon.Discount{}
		}
	}

	totals := ComputeTotals(subtotal, discount.Amount, c.PointsUsed, s.policy)
	totals.CouponCode = c.CouponCode
	totals.CouponDescription = discount.Description

	return &Quote{Cart: c, Lines: lines, Totals: totals}, nil
}

// MigrateGuestCart merges the guest cart guestID into the actor's cart by
// summing quantities of matching lines. Stock is not re-checked. Only the
// quantities that were moved are taken off the guest cart, so lines added
// to it concurrently survive; its coupon and points are reset.
func (s *Service) MigrateGuestCart(ctx context.Context, guestID, actorID string) error {
	if !identity.IsGuestID(guestID) || identity.IsGuestID(actorID) {
		return nil
	}
	guest, err := s.Get(ctx, guestID)
	if err != nil {
		return err
	}
	if guest.IsEmpty() {
		return nil
	}
	moved := guest.Items

	err = s.update(ctx, actorID, func(c *Cart) error {
		for _, it := range moved {
			c.Merge(it.ProductID, it.Quantity, it.Options, it.AddedAt)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "merge guest cart")
	}

	err = s.update(ctx, guestID, func(c *Cart) error {
		for _, it := range moved {
			left := c.Quantity(it.ProductID, it.Options) - it.Quantity
			c.SetQuantity(it.ProductID, left, it.Options)
		}
		c.CouponCode = ""
		c.PointsUsed = 0
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "reset guest cart")
	}

	zctx.From(ctx).Info("Guest cart migrated",
		zap.String("guest", guestID),
		zap.String("actor", actorID),
		zap.Int("lines", len(moved)),
	)
	return nil
}

func (s *Service) checkProduct(ctx context.Context, productID string, opts Options) error {
	p, err := s.products.GetByID(ctx, productID)
	if errors.Is(err, product.ErrNotFound) {
		return &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	if v, ok := opts["size"]; ok && len(p.Sizes) > 0 && !slices.Contains(p.Sizes, v) {
		return &InvalidOptionError{ProductID: productID, Option: "size", Value: v}
	}
	if v, ok := opts["color"]; ok && len(p.Colors) > 0 && !slices.Contains(p.Colors, v) {
		return &InvalidOptionError{ProductID: productID, Option: "color", Value: v}
	}
	return nil
}

func (s *Service) update(ctx context.Context, actorID string, fn func(c *Cart) error) error {
	err := s.carts.Update(ctx, actorID, func(c *Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		c.LastUpdated = s.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, stock.ErrInsufficientStock) || errors.Is(err, ErrLineNotFound) {
			return err
		}
		return errors.Wrap(err, "update cart")
	}
	return nil
}
