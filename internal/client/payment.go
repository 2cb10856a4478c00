package client

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/wire"
)

var _ checkout.PaymentGateway = (*Client)(nil)

// CreatePaymentOrder opens a gateway order for the grand total.
func (c *Client) CreatePaymentOrder(ctx context.Context, req checkout.PaymentRequest) (checkout.PaymentOrder, error) {
	body := encode(func(e *jx.Encoder) {
		e.ObjStart()
		wire.MoneyField(e, "amount", req.Amount)
		e.FieldStart("currency")
		e.Str(req.Currency)
		e.FieldStart("receipt")
		e.Str(req.Receipt)
		e.FieldStart("notes")
		e.ObjStart()
		keys := make([]string, 0, len(req.Notes))
		for k := range req.Notes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e.FieldStart(k)
			e.Str(req.Notes[k])
		}
		e.ObjEnd()
		e.ObjEnd()
	})

	po := checkout.PaymentOrder{Receipt: req.Receipt}
	err := c.do(ctx, http.MethodPost, "/api/payments/create-order", body, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "order" {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "id":
					po.ID, err = wire.OptString(d)
				case "amount":
					po.Amount, err = wire.Decimal(d)
				case "currency":
					po.Currency, err = wire.OptString(d)
				case "receipt":
					po.Receipt, err = wire.OptString(d)
				default:
					err = d.Skip()
				}
				return err
			})
		})
	})
	if err != nil {
		return checkout.PaymentOrder{}, err
	}
	if po.ID == "" {
		return checkout.PaymentOrder{}, errors.New("create-order response without order id")
	}
	return po, nil
}

// VerifyPayment checks the gateway signature server-side.
func (c *Client) VerifyPayment(ctx context.Context, p checkout.PaymentProof) error {
	body := encode(func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orderId")
		e.Str(p.OrderID)
		e.FieldStart("paymentId")
		e.Str(p.PaymentID)
		e.FieldStart("signature")
		e.Str(p.Signature)
		e.ObjEnd()
	})

	verified := false
	var message string
	err := c.do(ctx, http.MethodPost, "/api/payments/verify-payment", body, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "success", "verified":
				var ok bool
				ok, err = wire.OptBool(d)
				verified = verified || ok
			case "message":
				message, err = wire.OptString(d)
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		return err
	}
	if !verified {
		if message == "" {
			return checkout.ErrPaymentNotVerified
		}
		return errors.Wrap(checkout.ErrPaymentNotVerified, message)
	}
	return nil
}
