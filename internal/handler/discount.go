package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/client"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/wire"
)

// ValidateDiscount previews a code against {code, orderAmount}. A code that
// does not apply is a 200 with valid=false; only malformed requests are 4xx.
func (h *Handler) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		code      string
		amount    decimal.Decimal
		hasAmount bool
	)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = wire.OptString(d)
		case "orderAmount":
			amount, err = wire.Decimal(d)
			hasAmount = err == nil
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	switch {
	case err != nil:
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	case coupon.Normalize(code) == "":
		WriteError(w, http.StatusBadRequest, "code required")
		return
	case !hasAmount || amount.IsNegative():
		WriteError(w, http.StatusBadRequest, "orderAmount must be a non-negative number")
		return
	}

	disc, err := h.coupons.Validate(r.Context(), code, amount)
	if err != nil {
		msg, rejected := rejection(err)
		if !rejected {
			internalError(w, r, "validate discount", err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			client.EncodeVerdict(e, client.DiscountVerdict{Message: msg})
		})
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		client.EncodeVerdict(e, client.DiscountVerdict{
			Valid:          true,
			Kind:           string(disc.Kind),
			Value:          disc.Value,
			DiscountAmount: disc.Amount,
			Message:        disc.Description,
		})
	})
}

// rejection reports whether err is a business rejection of the code and the
// message to show for it.
func rejection(err error) (string, bool) {
	var minErr *coupon.MinimumNotMetError
	switch {
	case errors.As(err, &minErr):
		return minErr.Error(), true
	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponUsageLimitReached):
		return err.Error(), true
	}
	return "", false
}
