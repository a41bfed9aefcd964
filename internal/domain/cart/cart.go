package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidQuantity is returned when adding a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrLineNotFound is returned when updating a line the cart does not hold.
	ErrLineNotFound = errors.New("line item not found")
	// ErrInvalidPoints is returned for a negative points amount.
	ErrInvalidPoints = errors.New("points must not be negative")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidOptionError indicates an option value the product does not offer.
type InvalidOptionError struct {
	ProductID string
	Option    string
	Value     string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("product %s has no %s %q", e.ProductID, e.Option, e.Value)
}

// Options is the selected-options record of a line item (size, color).
type Options map[string]string

// OptionNames lists the selectable option keys.
var OptionNames = []string{"size", "color"}

// Key returns the canonical serialization used to tell line items apart.
// encoding/json sorts map keys, so equal records serialize identically.
func (o Options) Key() string {
	if len(o) == 0 {
		return ""
	}
	b, err := json.Marshal(o)
	if err != nil {
		return ""
	}
	return string(b)
}

// LineItem is a (product, options) pair with a quantity.
type LineItem struct {
	ProductID string    `json:"productId"`
	Quantity  int64     `json:"quantity"`
	Options   Options   `json:"options,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// Same reports whether l and the given product/options are the same line.
func (l LineItem) Same(productID string, opts Options) bool {
	return l.ProductID == productID && l.Options.Key() == opts.Key()
}

// Cart is one actor's cart. Items keep insertion order.
type Cart struct {
	ActorID     string     `json:"actorId"`
	Items       []LineItem `json:"items"`
	CouponCode  string     `json:"couponCode,omitempty"`
	PointsUsed  int64      `json:"pointsUsed"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// New returns an empty cart for an actor.
func New(actorID string) *Cart {
	return &Cart{ActorID: actorID, Items: []LineItem{}}
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Quantity returns the quantity of the matching line, 0 when absent.
func (c *Cart) Quantity(productID string, opts Options) int64 {
	if i := c.index(productID, opts); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// ItemCount sums quantities across line items.
func (c *Cart) ItemCount() int64 {
	var n int64
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Merge adds qty to the matching line or appends a new one. The summed
// quantity saturates at math.MaxInt64.
func (c *Cart) Merge(productID string, qty int64, opts Options, now time.Time) {
	if i := c.index(productID, opts); i >= 0 {
		c.Items[i].Quantity = addQuantity(c.Items[i].Quantity, qty)
		return
	}
	c.Items = append(c.Items, LineItem{
		ProductID: productID,
		Quantity:  qty,
		Options:   opts,
		AddedAt:   now,
	})
}

// SetQuantity sets the absolute quantity of a line; qty <= 0 removes it.
// It reports whether a matching line existed.
func (c *Cart) SetQuantity(productID string, qty int64, opts Options) bool {
	i := c.index(productID, opts)
	if i < 0 {
		return false
	}
	if qty <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true
	}
	c.Items[i].Quantity = qty
	return true
}

// Reset empties line items, coupon and points.
func (c *Cart) Reset() {
	c.Items = []LineItem{}
	c.CouponCode = ""
	c.PointsUsed = 0
}

func addQuantity(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func (c *Cart) index(productID string, opts Options) int {
	for i, it := range c.Items {
		if it.Same(productID, opts) {
			return i
		}
	}
	return -1
}

// Repository persists carts keyed by actor id. Get returns an empty cart
// when none is stored. Update runs fn atomically on the current cart.
type Repository interface {
	Get(ctx context.Context, actorID string) (*Cart, error)
	Update(ctx context.Context, actorID string, fn func(c *Cart) error) error
}
