// Package catalog serves the static product catalog and the initial stock
// sources used to seed the ledger.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/kart/internal/domain/product"
	"github.com/xenking/kart/internal/domain/stock"
)

//go:embed products.json
var defaultData []byte

var _ product.Repository = (*Catalog)(nil)

type record struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Price        int64    `json:"price"`
	MemberPrice  int64    `json:"memberPrice"`
	Category     string   `json:"category"`
	Sizes        []string `json:"sizes"`
	Colors       []string `json:"colors"`
	InitialStock int64    `json:"initialStock"`
}

type document struct {
	Categories []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
	Products []record `json:"products"`
}

// Catalog is an immutable in-memory product.Repository.
type Catalog struct {
	products   []product.Product
	byID       map[string]int
	categories []product.Category
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultData)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a catalog document. Member prices above the regular price
// are rejected.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	c := &Catalog{byID: make(map[string]int, len(doc.Products))}
	for _, cat := range doc.Categories {
		c.categories = append(c.categories, product.Category{ID: cat.ID, Name: cat.Name})
	}
	for _, r := range doc.Products {
		if r.ID == "" {
			return nil, errors.New("product without id")
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, errors.Errorf("duplicate product %q", r.ID)
		}
		if r.MemberPrice == 0 {
			r.MemberPrice = r.Price
		}
		if r.Price < 0 || r.MemberPrice > r.Price {
			return nil, errors.Errorf("product %q: invalid prices %d/%d", r.ID, r.Price, r.MemberPrice)
		}
		c.byID[r.ID] = len(c.products)
		c.products = append(c.products, product.Product{
			ID:           r.ID,
			Name:         r.Name,
			Price:        r.Price,
			MemberPrice:  r.MemberPrice,
			Category:     r.Category,
			Sizes:        r.Sizes,
			Colors:       r.Colors,
			InitialStock: r.InitialStock,
		})
	}
	return c, nil
}

// List returns all products in catalog order.
func (c *Catalog) List(context.Context) ([]product.Product, error) {
	return slices.Clone(c.products), nil
}

// GetByID returns a single product or product.ErrNotFound.
func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := c.products[i]
	return &p, nil
}

// GetByIDs returns the known products among ids; unknown ids are skipped.
func (c *Catalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if i, ok := c.byID[id]; ok {
			out = append(out, c.products[i])
		}
	}
	return out, nil
}

// Categories returns the category list.
func (c *Catalog) Categories(context.Context) ([]product.Category, error) {
	return slices.Clone(c.categories), nil
}

// StockSource derives initial quantities from the products' initialStock fields.
func (c *Catalog) StockSource() stock.Source {
	return catalogSource{c: c}
}

type catalogSource struct {
	c *Catalog
}

func (catalogSource) Name() string { return "catalog" }

func (s catalogSource) Load(context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(s.c.products))
	for _, p := range s.c.products {
		out[p.ID] = p.InitialStock
	}
	return out, nil
}
