package coupon

import (
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidCoupon is returned when a coupon code is not on the allow-list.
var ErrInvalidCoupon = errors.New("invalid coupon code")

// Rule is a fixed percentage-of-subtotal discount.
type Rule struct {
	Code    string
	Percent decimal.Decimal
	// MembersOnly rules can be applied by anyone but only discount for
	// authenticated members.
	MembersOnly bool
	Description string
}

// Discount holds the computed discount amount and a human-readable description.
type Discount struct {
	Amount      int64
	Description string
}

// Table is an immutable allow-list of coupon rules keyed by normalized code.
type Table struct {
	rules map[string]Rule
}

// NewTable builds a table from rules. Codes are normalized on insert.
func NewTable(rules ...Rule) *Table {
	t := &Table{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		r.Code = Normalize(r.Code)
		t.rules[r.Code] = r
	}
	return t
}

// DefaultTable returns the storefront's coupon allow-list.
func DefaultTable() *Table {
	return NewTable(
		Rule{Code: "WELCOME10", Percent: decimal.NewFromInt(10), Description: "Welcome: 10% off"},
		Rule{Code: "SPRING20", Percent: decimal.NewFromInt(20), Description: "Spring sale: 20% off"},
		Rule{Code: "MEMBER15", Percent: decimal.NewFromInt(15), MembersOnly: true, Description: "Members: 15% off"},
	)
}

// Normalize upper-cases and trims a coupon code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Lookup finds a rule by code, ignoring case.
func (t *Table) Lookup(code string) (Rule, error) {
	r, ok := t.rules[Normalize(code)]
	if !ok {
		return Rule{}, ErrInvalidCoupon
	}
	return r, nil
}

// Discount computes the discount of code on subtotal. An empty code yields
// no discount; an unknown code fails.
func (t *Table) Discount(code string, subtotal int64, member bool) (Discount, error) {
	if code == "" {
		return Discount{}, nil
	}
	r, err := t.Lookup(code)
	if err != nil {
		return Discount{}, err
	}
	return Apply(r, subtotal, member), nil
}

// Rules lists the table sorted by code.
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Rule) int { return strings.Compare(a.Code, b.Code) })
	return out
}
