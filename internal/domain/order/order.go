package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

// next holds the single forward step allowed from each status.
var next = map[Status]Status{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
}

// Cancellable reports whether an order in this status may be cancelled.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// CanTransition reports whether s may move to to.
func (s Status) CanTransition(to Status) bool {
	if to == StatusCancelled {
		return s.Cancellable()
	}
	return next[s] == to
}

var (
	// ErrNotFound is returned when an order does not exist for the actor.
	ErrNotFound = errors.New("order not found")
	// ErrGuestCheckout is returned when the guest actor tries to check out.
	ErrGuestCheckout = errors.New("sign in to place an order")
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidStatus is returned for an unknown status string.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrPaymentMethodRequired is returned when no payment method is given.
	ErrPaymentMethodRequired = errors.New("payment method required")
	// ErrDuplicateID is returned by repositories when an order id is taken.
	ErrDuplicateID = errors.New("duplicate order id")
)

// InvalidTransitionError reports a status change the lifecycle forbids.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// Address is the shipping address snapshot taken at checkout.
type Address struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
}

// Item is a price-locked order line.
type Item struct {
	ProductID    string            `json:"productId"`
	Name         string            `json:"name"`
	Options      map[string]string `json:"options,omitempty"`
	Quantity     int64             `json:"quantity"`
	Price        int64             `json:"price"`
	AppliedPrice int64             `json:"appliedPrice"`
	Subtotal     int64             `json:"subtotal"`
}

// Order is immutable once created except for Status.
type Order struct {
	ID              string    `json:"id"`
	ActorID         string    `json:"actorId"`
	Items           []Item    `json:"items"`
	Subtotal        int64     `json:"subtotal"`
	Discount        int64     `json:"discount"`
	PointsUsed      int64     `json:"pointsUsed"`
	ShippingFee     int64     `json:"shippingFee"`
	Total           int64     `json:"totalAmount"`
	PointsEarned    int64     `json:"pointsEarned"`
	CouponCode      string    `json:"couponCode,omitempty"`
	ShippingAddress Address   `json:"shippingAddress"`
	PaymentMethod   string    `json:"paymentMethod"`
	Notes           string    `json:"notes,omitempty"`
	Status          Status    `json:"status"`
	OrderDate       time.Time `json:"orderDate"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Repository persists each actor's ordered list of orders.
type Repository interface {
	List(ctx context.Context, actorID string) ([]Order, error)
	// Append adds o to the end of its actor's list. It returns
	// ErrDuplicateID when the actor already has an order with o.ID.
	Append(ctx context.Context, o *Order) error
	// Update runs fn atomically on one order and returns the stored result.
	// It returns ErrNotFound when the order does not exist.
	Update(ctx context.Context, actorID, orderID string, fn func(o *Order) error) (*Order, error)
	// All returns every order of every actor.
	All(ctx context.Context) ([]Order, error)
}
