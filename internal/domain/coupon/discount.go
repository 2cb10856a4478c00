package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply computes the discount of rule for an order amount. The result is
// rounded to cents and never exceeds the amount.
func Apply(rule *Rule, amount decimal.Decimal) (Discount, error) {
	if amount.LessThan(rule.MinOrderAmount) {
		return Discount{}, &MinimumNotMetError{Minimum: rule.MinOrderAmount}
	}

	var off decimal.Decimal
	switch rule.Kind {
	case KindPercentage:
		off = amount.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() {
			off = decimal.Min(off, rule.MaxDiscount)
		}
	case KindFixed:
		off = rule.Value
	default:
		return Discount{}, errors.Errorf("unsupported discount kind: %q", rule.Kind)
	}
	off = decimal.Min(floorAtZero(off), floorAtZero(amount)).Round(2)

	return Discount{
		Code:        rule.Code,
		Kind:        rule.Kind,
		Value:       rule.Value,
		Amount:      off,
		Description: rule.Description,
	}, nil
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
