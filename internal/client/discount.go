package client

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/wire"
)

var _ checkout.DiscountValidator = (*Client)(nil)

// DiscountVerdict is the body of POST /api/discounts/validate.
type DiscountVerdict struct {
	Valid          bool
	Kind           string
	Value          decimal.Decimal
	DiscountAmount decimal.Decimal
	Message        string
}

// EncodeVerdict writes v in the validate response shape.
func EncodeVerdict(e *jx.Encoder, v DiscountVerdict) {
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(v.Valid)
	if v.Valid {
		e.FieldStart("discount")
		e.ObjStart()
		e.FieldStart("kind")
		e.Str(v.Kind)
		wire.MoneyField(e, "value", v.Value)
		wire.MoneyField(e, "discountAmount", v.DiscountAmount)
		e.ObjEnd()
	}
	wire.StrField(e, "message", v.Message)
	e.ObjEnd()
}

// DecodeVerdict reads a validate response.
func DecodeVerdict(d *jx.Decoder) (DiscountVerdict, error) {
	var v DiscountVerdict
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "valid":
			v.Valid, err = wire.OptBool(d)
		case "message":
			v.Message, err = wire.OptString(d)
		case "discount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "kind", "type":
					v.Kind, err = wire.OptString(d)
				case "value":
					v.Value, err = wire.Decimal(d)
				case "discountAmount":
					v.DiscountAmount, err = wire.Decimal(d)
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return v, err
}

// ValidateDiscount asks the server to resolve code against orderAmount. An
// invalid code, either as valid=false or as a 4xx verdict, is returned as
// *checkout.DiscountRejectedError.
func (c *Client) ValidateDiscount(ctx context.Context, code string, orderAmount decimal.Decimal) (checkout.Grant, error) {
	body := encode(func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(code)
		wire.MoneyField(e, "orderAmount", orderAmount)
		e.ObjEnd()
	})

	var v DiscountVerdict
	err := c.do(ctx, http.MethodPost, "/api/discounts/validate", body, func(d *jx.Decoder) error {
		var err error
		v, err = DecodeVerdict(d)
		return err
	})

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests:
		return checkout.Grant{}, &checkout.DiscountRejectedError{Code: code, Reason: apiErr.Message}
	case err != nil:
		return checkout.Grant{}, err
	case !v.Valid:
		return checkout.Grant{}, &checkout.DiscountRejectedError{Code: code, Reason: v.Message}
	}
	return checkout.Grant{
		Code:      code,
		Kind:      v.Kind,
		Value:     v.Value,
		Amount:    v.DiscountAmount,
		AppliedTo: orderAmount,
	}, nil
}
