package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// Policy is the pricing and payment configuration of a checkout.
type Policy struct {
	Tax      pricing.TaxPolicy
	Shipping *pricing.ShippingPolicy
	// CODMinimum is the smallest pre-tax basket amount (the GST base of the
	// inclusive subtotal) that may be paid on delivery.
	CODMinimum   decimal.Decimal
	CODSurcharge decimal.Decimal
	Currency     string
}

// DefaultPolicy is the storefront default: GST banding, no shipping policy,
// COD from 500 with a 50 surcharge, prices in INR.
func DefaultPolicy() Policy {
	return Policy{
		Tax:          pricing.DefaultTaxPolicy(),
		CODMinimum:   decimal.NewFromInt(500),
		CODSurcharge: decimal.NewFromInt(50),
		Currency:     "INR",
	}
}

// CODAllowed reports whether the pre-tax amount of the tax-inclusive
// subtotal meets the COD minimum.
func (p Policy) CODAllowed(subtotal decimal.Decimal) bool {
	return pricing.Tax(subtotal, p.Tax).Base.GreaterThanOrEqual(p.CODMinimum)
}

func (p Policy) paymentProblem(m PaymentMethod, subtotal decimal.Decimal) string {
	switch {
	case m == "":
		return "required"
	case !m.Valid():
		return "unsupported payment method"
	case m == PaymentCOD && !p.CODAllowed(subtotal):
		return "cash on delivery requires a minimum order of " + p.CODMinimum.StringFixed(2) + " before tax"
	}
	return ""
}

func (p Policy) surcharge(m PaymentMethod) decimal.Decimal {
	if m == PaymentCOD {
		return p.CODSurcharge
	}
	return decimal.Zero
}
