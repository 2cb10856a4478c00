package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestTax(t *testing.T) {
	tests := []struct {
		name     string
		total    decimal.Decimal
		wantRate decimal.Decimal
		wantBase decimal.Decimal
		wantTax  decimal.Decimal
	}{
		{name: "zero total", total: d("0"), wantRate: d("0"), wantBase: d("0"), wantTax: d("0")},
		{name: "negative total", total: d("-10"), wantRate: d("0"), wantBase: d("0"), wantTax: d("0")},
		{name: "999 is low band", total: d("999"), wantRate: d("0.05"), wantBase: d("951.43"), wantTax: d("47.57")},
		{name: "1000 is high band", total: d("1000"), wantRate: d("0.12"), wantBase: d("892.86"), wantTax: d("107.14")},
		{name: "fraction over threshold", total: d("999.01"), wantRate: d("0.12"), wantBase: d("891.97"), wantTax: d("107.04")},
		{name: "2000 basket", total: d("2000"), wantRate: d("0.12"), wantBase: d("1785.71"), wantTax: d("214.29")},
		{name: "small basket", total: d("105"), wantRate: d("0.05"), wantBase: d("100"), wantTax: d("5")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tax(tt.total, DefaultTaxPolicy())
			assert.True(t, tt.wantRate.Equal(got.Rate), "rate: want %s, got %s", tt.wantRate, got.Rate)
			assert.True(t, tt.wantBase.Equal(got.Base), "base: want %s, got %s", tt.wantBase, got.Base)
			assert.True(t, tt.wantTax.Equal(got.Tax), "tax: want %s, got %s", tt.wantTax, got.Tax)
			if tt.total.IsPositive() {
				assert.True(t, got.Base.Add(got.Tax).Equal(tt.total), "base+tax must equal total")
			}
		})
	}
}

func TestTax_OverriddenPolicy(t *testing.T) {
	p := TaxPolicy{Threshold: d("100"), LowRate: d("0"), HighRate: d("0.25")}

	low := Tax(d("100"), p)
	assert.True(t, d("100").Equal(low.Base))
	assert.True(t, decimal.Zero.Equal(low.Tax))

	high := Tax(d("125"), p)
	assert.True(t, d("100").Equal(high.Base))
	assert.True(t, d("25").Equal(high.Tax))
}

func TestShipping(t *testing.T) {
	policy := &ShippingPolicy{
		FreeShippingThreshold: d("999"),
		DefaultShippingCost:   d("99"),
	}
	forced := &ShippingPolicy{
		FreeShippingThreshold: d("999"),
		ForcePaidShipping:     true,
		DefaultShippingCost:   d("99"),
	}

	tests := []struct {
		name   string
		total  decimal.Decimal
		policy *ShippingPolicy
		want   decimal.Decimal
	}{
		{name: "absent policy is free", total: d("10"), policy: nil, want: d("0")},
		{name: "below threshold pays", total: d("998.99"), policy: policy, want: d("99")},
		{name: "at threshold is free", total: d("999"), policy: policy, want: d("0")},
		{name: "above threshold is free", total: d("5000"), policy: policy, want: d("0")},
		{name: "forced paid above threshold", total: d("5000"), policy: forced, want: d("99")},
		{name: "forced paid below threshold", total: d("1"), policy: forced, want: d("99")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Shipping(tt.total, tt.policy)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestNewQuote(t *testing.T) {
	policy := &ShippingPolicy{FreeShippingThreshold: d("999"), DefaultShippingCost: d("99")}

	t.Run("free shipping basket", func(t *testing.T) {
		q := NewQuote(d("2000"), DefaultTaxPolicy(), policy, decimal.Zero, decimal.Zero)
		assert.True(t, d("1785.71").Equal(q.Tax.Base))
		assert.True(t, d("214.29").Equal(q.Tax.Tax))
		assert.True(t, decimal.Zero.Equal(q.Shipping))
		assert.True(t, d("2000").Equal(q.GrandTotal))
	})

	t.Run("shipping and surcharge added", func(t *testing.T) {
		q := NewQuote(d("600"), DefaultTaxPolicy(), policy, d("50"), d("100"))
		assert.True(t, d("749").Equal(q.PreDiscount))
		assert.True(t, d("649").Equal(q.GrandTotal))
	})

	t.Run("discount larger than total clamps at zero", func(t *testing.T) {
		q := NewQuote(d("100"), DefaultTaxPolicy(), policy, decimal.Zero, d("10000"))
		assert.True(t, decimal.Zero.Equal(q.GrandTotal))
		assert.False(t, q.GrandTotal.IsNegative())
	})
}
