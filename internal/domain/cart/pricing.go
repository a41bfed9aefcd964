package cart

import (
	"github.com/xenking/kart/internal/domain/product"
)

// Policy holds the shipping rules.
type Policy struct {
	FreeShippingThreshold int64
	ShippingFee           int64
}

// DefaultPolicy ships free from 5000 and charges 500 below that.
func DefaultPolicy() Policy {
	return Policy{FreeShippingThreshold: 5000, ShippingFee: 500}
}

// Shipping returns the fee for a subtotal.
func (p Policy) Shipping(subtotal int64) int64 {
	if subtotal >= p.FreeShippingThreshold {
		return 0
	}
	return p.ShippingFee
}

// PricedLine is a line item joined with its catalog product.
type PricedLine struct {
	ProductID    string
	Name         string
	Options      Options
	Quantity     int64
	Price        int64
	AppliedPrice int64
	Subtotal     int64
}

// Totals is the priced summary of a cart.
type Totals struct {
	Subtotal          int64
	Discount          int64
	PointsDiscount    int64
	Shipping          int64
	Total             int64
	CouponCode        string
	CouponDescription string
}

// PriceLine prices one line for a member or regular customer.
func PriceLine(it LineItem, p product.Product, member bool) PricedLine {
	applied := p.PriceFor(member)
	return PricedLine{
		ProductID:    it.ProductID,
		Name:         p.Name,
		Options:      it.Options,
		Quantity:     it.Quantity,
		Price:        p.Price,
		AppliedPrice: applied,
		Subtotal:     applied * it.Quantity,
	}
}

// Subtotal sums line subtotals.
func Subtotal(lines []PricedLine) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.Subtotal
	}
	return sum
}

// ComputeTotals applies discount, points and shipping to subtotal. The total
// never goes below zero.
func ComputeTotals(subtotal, discount, points int64, policy Policy) Totals {
	shipping := policy.Shipping(subtotal)
	return Totals{
		Subtotal:       subtotal,
		Discount:       discount,
		PointsDiscount: points,
		Shipping:       shipping,
		Total:          max(0, subtotal-discount-points+shipping),
	}
}
