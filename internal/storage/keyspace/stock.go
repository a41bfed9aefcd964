package keyspace

import (
	"context"

	"github.com/xenking/kart/internal/domain/stock"
	"github.com/xenking/kart/internal/kv"
)

var _ stock.Repository = (*StockRepository)(nil)

// StockRepository stores the shared ledger under stock:shared.
type StockRepository struct {
	store kv.Store
}

// NewStockRepository returns a StockRepository on store.
func NewStockRepository(store kv.Store) *StockRepository {
	return &StockRepository{store: store}
}

// Load returns the ledger, empty when none is stored.
func (r *StockRepository) Load(ctx context.Context) (*stock.Ledger, error) {
	l := stock.NewLedger()
	if _, err := getJSON(ctx, r.store, kv.StockKey, l); err != nil {
		return nil, err
	}
	if l.Items == nil {
		l.Items = make(map[string]int64)
	}
	return l, nil
}

// Update applies fn to the ledger atomically.
func (r *StockRepository) Update(ctx context.Context, fn func(l *stock.Ledger) error) error {
	return updateJSON(ctx, r.store, kv.StockKey, stock.NewLedger, func(l *stock.Ledger, _ bool) error {
		if l.Items == nil {
			l.Items = make(map[string]int64)
		}
		return fn(l)
	})
}
