package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_type, value, min_order_amount, max_discount, description,
		valid_from, valid_until, max_uses, uses, active`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = UPPER($1)`

	// The guard keeps concurrent redemptions from overshooting max_uses.
	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1
		WHERE code = $1 AND (max_uses = 0 OR uses < max_uses)`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount = EXCLUDED.max_discount,
			description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			max_uses = EXCLUDED.max_uses,
			active = EXCLUDED.active`

	listCouponCodesSQL = `SELECT code FROM coupons WHERE active OR NOT $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalised code. Inactive coupons are
// returned so the validator can report them.
// Returns coupon.ErrInvalidCoupon when no coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &rule, nil
}

// IncrementUses consumes one use. It reports
// coupon.ErrCouponUsageLimitReached when the limit was hit concurrently.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, incrementCouponUsesSQL, code)
	if err != nil {
		return errors.Wrapf(err, "increment uses for coupon %q", code)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponUsageLimitReached
	}
	return nil
}

// Upsert inserts or replaces a rule. Uses are never reset.
func (r *CouponRepository) Upsert(ctx context.Context, rule coupon.Rule) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		coupon.Normalize(rule.Code), string(rule.Kind), rule.Value, rule.MinOrderAmount,
		rule.MaxDiscount, rule.Description, rule.ValidFrom, rule.ValidUntil,
		rule.MaxUses, rule.Uses, rule.Active,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", rule.Code)
	}
	return nil
}

// CopyCodes bulk-loads codes that share one template rule. Codes must be new
// and unique. It returns the number of rows written.
func (r *CouponRepository) CopyCodes(ctx context.Context, codes []string, tmpl coupon.Rule) (int64, error) {
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"coupons"},
		[]string{"code", "discount_type", "value", "min_order_amount", "max_discount", "description", "max_uses", "active"},
		pgx.CopyFromSlice(len(codes), func(i int) ([]any, error) {
			return []any{
				codes[i], string(tmpl.Kind), tmpl.Value, tmpl.MinOrderAmount,
				tmpl.MaxDiscount, tmpl.Description, tmpl.MaxUses, tmpl.Active,
			}, nil
		}),
	)
	if err != nil {
		return n, errors.Wrap(err, "copy coupons")
	}
	return n, nil
}

// ActiveCodes streams every active code to fn.
func (r *CouponRepository) ActiveCodes(ctx context.Context, fn func(code string)) error {
	return r.codes(ctx, true, fn)
}

// AllCodes streams every stored code, active or not, to fn.
func (r *CouponRepository) AllCodes(ctx context.Context, fn func(code string)) error {
	return r.codes(ctx, false, fn)
}

func (r *CouponRepository) codes(ctx context.Context, activeOnly bool, fn func(code string)) error {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL, activeOnly)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return errors.Wrap(err, "scan coupon code")
		}
		fn(code)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "list coupon codes")
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
	)
	err := row.Scan(
		&rule.Code, &discountType, &rule.Value, &rule.MinOrderAmount, &rule.MaxDiscount,
		&rule.Description, &rule.ValidFrom, &rule.ValidUntil, &rule.MaxUses, &rule.Uses,
		&rule.Active,
	)
	rule.Kind = coupon.Kind(discountType)
	return rule, err
}
