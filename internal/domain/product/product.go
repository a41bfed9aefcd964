package product

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Remaining
// quantity lives in the stock ledger, not here.
type Product struct {
	ID           string
	Name         string
	Price        int64
	MemberPrice  int64
	Category     string
	Sizes        []string
	Colors       []string
	InitialStock int64
}

// PriceFor returns the price charged to a member or a regular customer.
func (p Product) PriceFor(member bool) int64 {
	if member && p.MemberPrice > 0 && p.MemberPrice <= p.Price {
		return p.MemberPrice
	}
	return p.Price
}

// Category groups products for browsing.
type Category struct {
	ID   string
	Name string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Categories(ctx context.Context) ([]Category, error)
}
