package stock

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service is the shared source of truth for remaining quantity per product.
// Every mutation goes through Repository.Update, so concurrent callers
// cannot oversell.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a stock Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the remaining quantity of a product, 0 when unknown.
func (s *Service) Get(ctx context.Context, productID string) (int64, error) {
	l, err := s.repo.Load(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load ledger")
	}
	return l.Get(productID), nil
}

// Snapshot returns a copy of the whole ledger.
func (s *Service) Snapshot(ctx context.Context) (*Ledger, error) {
	l, err := s.repo.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load ledger")
	}
	return l, nil
}

// Decrement subtracts qty from a product. It fails without mutating the
// ledger when fewer than qty units remain. A zero qty is a no-op.
func (s *Service) Decrement(ctx context.Context, productID string, qty int64) error {
	return s.Reserve(ctx, []Line{{ProductID: productID, Quantity: qty}})
}

// Increment adds qty back to a product. There is no upper bound: the ledger
// may exceed its initialized value when increments outnumber decrements.
func (s *Service) Increment(ctx context.Context, productID string, qty int64) error {
	return s.Release(ctx, []Line{{ProductID: productID, Quantity: qty}})
}

// Reserve decrements every line or none. All lines are first validated
// against one snapshot of the ledger, with quantities of repeated products
// summed, and only then applied.
func (s *Service) Reserve(ctx context.Context, lines []Line) error {
	want, err := aggregate(lines)
	if err != nil {
		return err
	}
	if len(want) == 0 {
		return nil
	}

	err = s.repo.Update(ctx, func(l *Ledger) error {
		for _, line := range lines {
			qty, ok := want[line.ProductID]
			if !ok {
				continue
			}
			if have := l.Get(line.ProductID); have < qty {
				return &InsufficientStockError{ProductID: line.ProductID, Requested: qty, Available: have}
			}
		}
		for id, qty := range want {
			l.Items[id] -= qty
		}
		l.LastUpdated = s.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return err
		}
		return errors.Wrap(err, "reserve stock")
	}
	return nil
}

// Release unconditionally adds every line back to the ledger.
func (s *Service) Release(ctx context.Context, lines []Line) error {
	add, err := aggregate(lines)
	if err != nil {
		return err
	}
	if len(add) == 0 {
		return nil
	}

	err = s.repo.Update(ctx, func(l *Ledger) error {
		for id, qty := range add {
			l.Items[id] += qty
		}
		l.LastUpdated = s.now()
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "release stock")
	}
	return nil
}

// Initialize seeds the ledger from the first source that loads. A ledger
// that already holds entries is left alone so restarts keep sold-down
// quantities. It returns the name of the source used, or "" when the
// ledger was already seeded.
func (s *Service) Initialize(ctx context.Context, sources ...Source) (string, error) {
	current, err := s.repo.Load(ctx)
	if err != nil {
		return "", errors.Wrap(err, "load ledger")
	}
	if len(current.Items) > 0 {
		return "", nil
	}
	return s.Reset(ctx, sources...)
}

// Reset overwrites the ledger from the first source that loads.
func (s *Service) Reset(ctx context.Context, sources ...Source) (string, error) {
	lg := zctx.From(ctx)

	for _, src := range sources {
		items, err := src.Load(ctx)
		if err != nil {
			lg.Warn("Initial stock source unavailable",
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			continue
		}

		err = s.repo.Update(ctx, func(l *Ledger) error {
			l.Items = make(map[string]int64, len(items))
			for id, qty := range items {
				if qty < 0 {
					qty = 0
				}
				l.Items[id] = qty
			}
			l.LastUpdated = s.now()
			return nil
		})
		if err != nil {
			return "", errors.Wrap(err, "seed ledger")
		}

		lg.Info("Stock ledger seeded",
			zap.String("source", src.Name()),
			zap.Int("products", len(items)),
		)
		return src.Name(), nil
	}
	return "", ErrNoSource
}

func aggregate(lines []Line) (map[string]int64, error) {
	out := make(map[string]int64, len(lines))
	for _, line := range lines {
		switch {
		case line.Quantity < 0:
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %s", line.ProductID)
		case line.Quantity == 0:
			continue
		case line.Quantity > math.MaxInt64-out[line.ProductID]:
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %s: quantity overflows", line.ProductID)
		}
		out[line.ProductID] += line.Quantity
	}
	return out, nil
}
