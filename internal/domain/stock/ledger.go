package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInsufficientStock is matched by *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrNoSource is returned by Initialize when every source failed.
	ErrNoSource = errors.New("no initial stock source available")
)

// InsufficientStockError reports the product that could not be covered.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Ledger is the single shared map of remaining quantity per product.
type Ledger struct {
	Items       map[string]int64 `json:"items"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{Items: make(map[string]int64)}
}

// Get returns the quantity of a product. Missing entries read as 0.
func (l *Ledger) Get(productID string) int64 {
	if l == nil {
		return 0
	}
	return l.Items[productID]
}

// Line is a quantity of one product to take from or return to the ledger.
type Line struct {
	ProductID string
	Quantity  int64
}

// Repository persists the ledger. Update must run fn atomically with
// respect to other Update calls; when fn returns an error nothing is stored.
type Repository interface {
	Load(ctx context.Context) (*Ledger, error)
	Update(ctx context.Context, fn func(l *Ledger) error) error
}

// Source yields an initial quantity per product.
type Source interface {
	Name() string
	Load(ctx context.Context) (map[string]int64, error)
}
