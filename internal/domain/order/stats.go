package order

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PaymentStats aggregates non-cancelled orders of one payment method.
type PaymentStats struct {
	Count   int
	Revenue int64
}

// ProductSales aggregates one product across non-cancelled orders.
type ProductSales struct {
	ProductID string
	Name      string
	Quantity  int64
	Revenue   int64
}

// Summary is the administrative view over every stored order. Counts and
// revenue exclude cancelled orders; ByStatus counts all of them.
type Summary struct {
	OrderCount        int
	Revenue           int64
	AverageOrderValue decimal.Decimal
	ByStatus          map[Status]int
	ByPaymentMethod   map[string]PaymentStats
	ProductSales      []ProductSales
}

// Stats scans every actor's orders and aggregates them. The scan is
// O(total orders) on each call.
func (s *Service) Stats(ctx context.Context) (*Summary, error) {
	all, err := s.orders.All(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	sum := Summarize(all)
	return &sum, nil
}

// Summarize aggregates orders.
func Summarize(orders []Order) Summary {
	sum := Summary{
		AverageOrderValue: decimal.Zero,
		ByStatus:          make(map[Status]int, len(Statuses)),
		ByPaymentMethod:   make(map[string]PaymentStats),
	}
	for _, st := range Statuses {
		sum.ByStatus[st] = 0
	}

	products := make(map[string]*ProductSales)
	for _, o := range orders {
		sum.ByStatus[o.Status]++
		if o.Status == StatusCancelled {
			continue
		}

		sum.OrderCount++
		sum.Revenue += o.Total

		pm := sum.ByPaymentMethod[o.PaymentMethod]
		pm.Count++
		pm.Revenue += o.Total
		sum.ByPaymentMethod[o.PaymentMethod] = pm

		for _, it := range o.Items {
			ps, ok := products[it.ProductID]
			if !ok {
				ps = &ProductSales{ProductID: it.ProductID, Name: it.Name}
				products[it.ProductID] = ps
			}
			ps.Quantity += it.Quantity
			ps.Revenue += it.Subtotal
		}
	}

	if sum.OrderCount > 0 {
		sum.AverageOrderValue = decimal.NewFromInt(sum.Revenue).
			Div(decimal.NewFromInt(int64(sum.OrderCount))).
			Round(2)
	}

	sum.ProductSales = make([]ProductSales, 0, len(products))
	for _, ps := range products {
		sum.ProductSales = append(sum.ProductSales, *ps)
	}
	slices.SortFunc(sum.ProductSales, func(a, b ProductSales) int {
		if c := cmp.Compare(b.Revenue, a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return sum
}
