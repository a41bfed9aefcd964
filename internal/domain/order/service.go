package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart/internal/domain/cart"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/stock"
)

// Carts prices and clears the checking-out actor's cart.
type Carts interface {
	Checkout(ctx context.Context, actorID string) (*cart.Quote, error)
	Clear(ctx context.Context, actorID string) error
}

// Stock reserves and releases ledger quantity.
type Stock interface {
	Reserve(ctx context.Context, lines []stock.Line) error
	Release(ctx context.Context, lines []stock.Line) error
}

// Points resolves actors and moves their points balance.
type Points interface {
	Actor(ctx context.Context, actorID string) (identity.Actor, error)
	Credit(ctx context.Context, actorID string, points int64) error
	Debit(ctx context.Context, actorID string, points int64) error
}

// IDGenerator issues order ids.
type IDGenerator interface {
	Next() string
}

// Recorder observes order lifecycle events.
type Recorder interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderCancelled(ctx context.Context, res *CancelResult)
	StockRejected(ctx context.Context, productID string)
}

type nopRecorder struct{}

func (nopRecorder) OrderCreated(context.Context, *Order) {}

func (nopRecorder) OrderCancelled(context.Context, *CancelResult) {}

func (nopRecorder) StockRejected(context.Context, string) {}

const maxIDAttempts = 3

// CreateRequest holds the input for creating an order from a cart.
type CreateRequest struct {
	ActorID         string
	ShippingAddress Address
	PaymentMethod   string
	Notes           string
}

// CancelResult reports how completely a cancellation was reversed. The
// order is cancelled even when a reversal step fails.
type CancelResult struct {
	Order          *Order
	StockRestored  bool
	PointsRefunded bool
	EarnedReversed bool
	Issues         []string
}

// Degraded reports whether any reversal step failed.
func (r *CancelResult) Degraded() bool {
	return !r.StockRestored || !r.PointsRefunded || !r.EarnedReversed
}

// Service is the order engine.
type Service struct {
	orders      Repository
	carts       Carts
	stock       Stock
	points      Points
	ids         IDGenerator
	accrualRate decimal.Decimal
	recorder    Recorder
	now         func() time.Time
}

// Option configures a Service.
type Option func(s *Service)

// WithRecorder sets the lifecycle event recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithAccrualRate sets the share of an order total credited as points.
func WithAccrualRate(rate decimal.Decimal) Option {
	return func(s *Service) { s.accrualRate = rate }
}

// DefaultAccrualRate credits 1% of the order total.
var DefaultAccrualRate = decimal.RequireFromString("0.01")

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	carts Carts,
	stock Stock,
	points Points,
	ids IDGenerator,
	opts ...Option,
) *Service {
	s := &Service{
		orders:      orders,
		carts:       carts,
		stock:       stock,
		points:      points,
		ids:         ids,
		accrualRate: DefaultAccrualRate,
		recorder:    nopRecorder{},
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PointsEarned returns floor(total * accrual rate).
func (s *Service) PointsEarned(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(total).Mul(s.accrualRate).Floor().IntPart()
}

// Create turns the actor's cart into a pending order. Guest actors and
// empty carts fail before anything is touched. Stock for all lines is
// reserved in one all-or-nothing step.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	lg := zctx.From(ctx)

	actor, err := s.points.Actor(ctx, req.ActorID)
	if err != nil {
		return nil, errors.Wrap(err, "get actor")
	}
	if actor.IsGuest() {
		return nil, ErrGuestCheckout
	}
	if req.PaymentMethod == "" {
		return nil, ErrPaymentMethodRequired
	}

	quote, err := s.carts.Checkout(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}
	if quote.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if quote.Cart.PointsUsed > actor.Points {
		return nil, identity.ErrInsufficientPoints
	}

	lines := make([]stock.Line, len(quote.Lines))
	items := make([]Item, len(quote.Lines))
	for i, l := range quote.Lines {
		lines[i] = stock.Line{ProductID: l.ProductID, Quantity: l.Quantity}
		items[i] = Item{
			ProductID:    l.ProductID,
			Name:         l.Name,
			Options:      l.Options,
			Quantity:     l.Quantity,
			Price:        l.Price,
			AppliedPrice: l.AppliedPrice,
			Subtotal:     l.Subtotal,
		}
	}

	if err := s.stock.Reserve(ctx, lines); err != nil {
		var stockErr *stock.InsufficientStockError
		if errors.As(err, &stockErr) {
			s.recorder.StockRejected(ctx, stockErr.ProductID)
			return nil, err
		}
		return nil, errors.Wrap(err, "reserve stock")
	}

	totals := quote.Totals
	now := s.now()
	o := &Order{
		ActorID:         actor.ID,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Discount:        totals.Discount,
		PointsUsed:      totals.PointsDiscount,
		ShippingFee:     totals.Shipping,
		Total:           totals.Total,
		PointsEarned:    s.PointsEarned(totals.Total),
		CouponCode:      totals.CouponCode,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		Status:          StatusPending,
		OrderDate:       now,
		UpdatedAt:       now,
	}

	if err := s.persist(ctx, o); err != nil {
		if relErr := s.stock.Release(ctx, lines); relErr != nil {
			lg.Error("Release stock after failed order write",
				zap.String("actor", actor.ID),
				zap.Error(relErr),
			)
		}
		return nil, errors.Wrap(err, "create order")
	}

	if o.PointsUsed > 0 {
		if err := s.points.Debit(ctx, actor.ID, o.PointsUsed); err != nil {
			lg.Warn("Debit redeemed points",
				zap.String("order", o.ID),
				zap.Int64("points", o.PointsUsed),
				zap.Error(err),
			)
		}
	}
	if o.PointsEarned > 0 {
		if err := s.points.Credit(ctx, actor.ID, o.PointsEarned); err != nil {
			lg.Warn("Credit earned points",
				zap.String("order", o.ID),
				zap.Int64("points", o.PointsEarned),
				zap.Error(err),
			)
		}
	}
	if err := s.carts.Clear(ctx, actor.ID); err != nil {
		lg.Error("Clear cart after checkout",
			zap.String("order", o.ID),
			zap.Error(err),
		)
	}

	s.recorder.OrderCreated(ctx, o)
	lg.Info("Order created",
		zap.String("order", o.ID),
		zap.String("actor", actor.ID),
		zap.Int64("total", o.Total),
	)
	return o, nil
}

func (s *Service) persist(ctx context.Context, o *Order) error {
	var err error
	for range maxIDAttempts {
		o.ID = s.ids.Next()
		err = s.orders.Append(ctx, o)
		if !errors.Is(err, ErrDuplicateID) {
			return err
		}
	}
	return err
}

// Cancel moves a pending or processing order to cancelled and reverses its
// effects: stock is restored, redeemed points are credited back and earned
// points are debited back. The status changes first so a concurrent second
// cancel fails instead of restoring stock twice.
func (s *Service) Cancel(ctx context.Context, actorID, orderID string) (*CancelResult, error) {
	o, err := s.orders.Update(ctx, actorID, orderID, func(o *Order) error {
		if !o.Status.Cancellable() {
			return &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusCancelled}
		}
		o.Status = StatusCancelled
		o.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, s.wrapUpdateErr(err)
	}

	res := &CancelResult{Order: o, StockRestored: true, PointsRefunded: true, EarnedReversed: true}

	lines := make([]stock.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, stock.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if len(lines) > 0 {
		if err := s.stock.Release(ctx, lines); err != nil {
			res.StockRestored = false
			res.Issues = append(res.Issues, "restore stock: "+err.Error())
		}
	}
	if o.PointsUsed > 0 {
		if err := s.points.Credit(ctx, actorID, o.PointsUsed); err != nil {
			res.PointsRefunded = false
			res.Issues = append(res.Issues, "refund redeemed points: "+err.Error())
		}
	}
	if o.PointsEarned > 0 {
		if err := s.points.Debit(ctx, actorID, o.PointsEarned); err != nil {
			res.EarnedReversed = false
			res.Issues = append(res.Issues, "reverse earned points: "+err.Error())
		}
	}

	s.recorder.OrderCancelled(ctx, res)
	lg := zctx.From(ctx)
	if res.Degraded() {
		lg.Warn("Order cancelled with degraded reversal",
			zap.String("order", o.ID),
			zap.Strings("issues", res.Issues),
		)
	} else {
		lg.Info("Order cancelled", zap.String("order", o.ID))
	}
	return res, nil
}

// UpdateStatus advances an order one step along
// pending -> processing -> shipped -> delivered. Moving to cancelled runs
// Cancel so its reversals always happen.
func (s *Service) UpdateStatus(ctx context.Context, actorID, orderID string, to Status) (*Order, error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}
	if to == StatusCancelled {
		res, err := s.Cancel(ctx, actorID, orderID)
		if err != nil {
			return nil, err
		}
		return res.Order, nil
	}

	o, err := s.orders.Update(ctx, actorID, orderID, func(o *Order) error {
		if !o.Status.CanTransition(to) {
			return &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: to}
		}
		o.Status = to
		o.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, s.wrapUpdateErr(err)
	}
	return o, nil
}

// List returns the actor's orders in creation order.
func (s *Service) List(ctx context.Context, actorID string) ([]Order, error) {
	orders, err := s.orders.List(ctx, actorID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Get returns one of the actor's orders.
func (s *Service) Get(ctx context.Context, actorID, orderID string) (*Order, error) {
	orders, err := s.List(ctx, actorID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].ID == orderID {
			return &orders[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) wrapUpdateErr(err error) error {
	var trErr *InvalidTransitionError
	if errors.Is(err, ErrNotFound) || errors.As(err, &trErr) {
		return err
	}
	return errors.Wrap(err, "update order")
}
