package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount of rule on subtotal, floored to whole
// currency units. Members-only rules discount nothing for non-members.
func Apply(rule Rule, subtotal int64, member bool) Discount {
	if subtotal <= 0 || (rule.MembersOnly && !member) {
		return Discount{Description: rule.Description}
	}

	amount := decimal.NewFromInt(subtotal).Mul(rule.Percent).Div(hundred).Floor()
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{
		Amount:      min(amount.IntPart(), subtotal),
		Description: rule.Description,
	}
}
