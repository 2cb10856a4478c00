// Package pricing decomposes tax-inclusive totals and resolves shipping cost.
// Every function here is pure; the checkout orchestrator and any preview
// share these to keep threshold logic in one place.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Money values are rounded to this many decimal places. decimal.Round rounds
// half away from zero.
const centPlaces = 2

var one = decimal.NewFromInt(1)

// TaxPolicy describes a two-band inclusive tax. Totals up to and including
// Threshold are taxed at LowRate, anything above at HighRate.
type TaxPolicy struct {
	Threshold decimal.Decimal
	LowRate   decimal.Decimal
	HighRate  decimal.Decimal
}

// DefaultTaxPolicy is the GST banding for apparel: 5% up to 999, 12% above.
func DefaultTaxPolicy() TaxPolicy {
	return TaxPolicy{
		Threshold: decimal.NewFromInt(999),
		LowRate:   decimal.RequireFromString("0.05"),
		HighRate:  decimal.RequireFromString("0.12"),
	}
}

// RateFor returns the band rate for an inclusive total.
func (p TaxPolicy) RateFor(total decimal.Decimal) decimal.Decimal {
	if total.LessThanOrEqual(p.Threshold) {
		return p.LowRate
	}
	return p.HighRate
}

// Breakdown splits an inclusive total into its base and tax portions.
type Breakdown struct {
	Rate  decimal.Decimal
	Base  decimal.Decimal
	Tax   decimal.Decimal
	Total decimal.Decimal
}

// Tax decomposes the tax-inclusive total. A zero or negative total yields an
// all-zero breakdown.
func Tax(total decimal.Decimal, p TaxPolicy) Breakdown {
	if !total.IsPositive() {
		return Breakdown{Rate: decimal.Zero, Base: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
	}
	rate := p.RateFor(total)
	base := total.Div(one.Add(rate)).Round(centPlaces)
	return Breakdown{
		Rate:  rate,
		Base:  base,
		Tax:   total.Sub(base).Round(centPlaces),
		Total: total.Round(centPlaces),
	}
}

// ShippingPolicy is externally supplied, read-only configuration.
type ShippingPolicy struct {
	FreeShippingThreshold decimal.Decimal
	ForcePaidShipping     bool
	DefaultShippingCost   decimal.Decimal
}

// Shipping returns the shipping cost for a basket total. A nil policy means
// the configuration is absent and shipping is free.
func Shipping(total decimal.Decimal, p *ShippingPolicy) decimal.Decimal {
	switch {
	case p == nil:
		return decimal.Zero
	case p.ForcePaidShipping:
		return p.DefaultShippingCost
	case total.GreaterThanOrEqual(p.FreeShippingThreshold):
		return decimal.Zero
	default:
		return p.DefaultShippingCost
	}
}

// Quote is the grand-total fold, applied in a fixed order.
type Quote struct {
	Subtotal     decimal.Decimal
	Tax          Breakdown
	Shipping     decimal.Decimal
	CODSurcharge decimal.Decimal
	// PreDiscount is Subtotal + Shipping + CODSurcharge.
	PreDiscount decimal.Decimal
	Discount    decimal.Decimal
	GrandTotal  decimal.Decimal
}

// NewQuote folds subtotal, shipping, surcharge and discount into a grand
// total clamped at zero. Tax is inclusive in subtotal and never added again.
func NewQuote(subtotal decimal.Decimal, tax TaxPolicy, shipping *ShippingPolicy, codSurcharge, discount decimal.Decimal) Quote {
	q := Quote{
		Subtotal:     subtotal.Round(centPlaces),
		Tax:          Tax(subtotal, tax),
		Shipping:     Shipping(subtotal, shipping).Round(centPlaces),
		CODSurcharge: codSurcharge.Round(centPlaces),
		Discount:     discount.Round(centPlaces),
	}
	q.PreDiscount = q.Subtotal.Add(q.Shipping).Add(q.CODSurcharge)
	q.GrandTotal = ClampZero(q.PreDiscount.Sub(q.Discount))
	return q
}

// ClampZero floors v at zero.
func ClampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
