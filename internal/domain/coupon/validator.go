package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator resolves codes.
type Validator interface {
	// Validate previews a code without consuming a use.
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*Discount, error)
	// Redeem validates and consumes one use.
	Redeem(ctx context.Context, code string, amount decimal.Decimal) (*Discount, error)
}

// RepoValidator implements Validator over a Repository.
type RepoValidator struct {
	repo      Repository
	prefilter Prefilter
	now       func() time.Time
}

// ValidatorOption configures a RepoValidator.
type ValidatorOption func(*RepoValidator)

// WithPrefilter rejects codes the filter has never seen without a lookup.
func WithPrefilter(p Prefilter) ValidatorOption {
	return func(v *RepoValidator) { v.prefilter = p }
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository, opts ...ValidatorOption) *RepoValidator {
	v := &RepoValidator{repo: repo, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Normalize is the canonical form of a code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate looks up the rule, checks activity, the valid window and usage
// limits, and applies it to amount.
func (v *RepoValidator) Validate(ctx context.Context, code string, amount decimal.Decimal) (*Discount, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}
	if v.prefilter != nil && !v.prefilter.MayContain(code) {
		return nil, ErrInvalidCoupon
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !rule.Active {
		return nil, ErrInvalidCoupon
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	d, err := Apply(rule, amount)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Redeem is Validate followed by a use increment.
func (v *RepoValidator) Redeem(ctx context.Context, code string, amount decimal.Decimal) (*Discount, error) {
	d, err := v.Validate(ctx, code, amount)
	if err != nil {
		return nil, err
	}
	if err := v.repo.IncrementUses(ctx, d.Code); err != nil {
		return nil, errors.Wrap(err, "increment coupon uses")
	}
	return d, nil
}
