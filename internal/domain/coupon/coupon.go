// Package coupon resolves discount codes against an order amount.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes Value percent off the order amount.
	KindPercentage Kind = "percentage"
	// KindFixed takes Value off, capped at the order amount.
	KindFixed Kind = "fixed"
)

var (
	// ErrInvalidCoupon is returned when a code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid discount code")
	// ErrCouponExpired is returned when a code is outside its valid window.
	ErrCouponExpired = errors.New("discount code expired")
	// ErrCouponUsageLimitReached is returned when a code has no uses left.
	ErrCouponUsageLimitReached = errors.New("discount code usage limit reached")
)

// MinimumNotMetError is returned when the order amount is below the rule's
// minimum.
type MinimumNotMetError struct {
	Minimum decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return "minimum order amount of " + e.Minimum.StringFixed(2) + " not met"
}

// Rule defines a code's discount and eligibility.
type Rule struct {
	Code           string
	Kind           Kind
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	// MaxDiscount caps a percentage discount; zero means no cap.
	MaxDiscount decimal.Decimal
	Description string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	MaxUses     int
	Uses        int
	Active      bool
}

// Discount is a resolved rule.
type Discount struct {
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	Amount      decimal.Decimal
	Description string
}

// Repository provides lookup and mutation of rules.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	IncrementUses(ctx context.Context, code string) error
}

// Prefilter answers "definitely not a code" cheaply. False positives are
// allowed; false negatives are not.
type Prefilter interface {
	MayContain(code string) bool
}
