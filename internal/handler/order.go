package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/wire"
)

// PlaceOrder decodes the order body, delegates to the order service, and
// maps the result (or error) back to a response.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodePlaceOrder(d)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orderService.PlaceOrder(r.Context(), req)
	if err != nil {
		if status, msg, ok := mapOrderError(err); ok {
			WriteError(w, status, msg)
			return
		}
		internalError(w, r, "place order", err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(true)
		e.FieldStart("message")
		e.Str("order placed")
		e.FieldStart("order")
		encodeOrder(e, result.Order)
		e.ObjEnd()
	})
}

// GetOrder returns a stored order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderService.Get(r.Context(), r.PathValue("orderId"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "order not found")
			return
		}
		internalError(w, r, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// mapOrderError converts domain errors to an HTTP status and message.
func mapOrderError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidPaymentMethod):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, order.ErrCODChargesNotAllowed),
		errors.Is(err, order.ErrPaymentRequired):
		return http.StatusUnprocessableEntity, err.Error(), true
	}

	var (
		iqErr  *order.InvalidQuantityError
		pnfErr *order.ProductNotFoundError
		amtErr *order.InvalidAmountError
		pmErr  *order.PriceMismatchError
		tmErr  *order.TotalMismatchError
		minErr *coupon.MinimumNotMetError
	)
	switch {
	case errors.As(err, &iqErr):
		return http.StatusUnprocessableEntity, iqErr.Error(), true
	case errors.As(err, &pnfErr):
		return http.StatusUnprocessableEntity, pnfErr.Error(), true
	case errors.As(err, &amtErr):
		return http.StatusUnprocessableEntity, amtErr.Error(), true
	case errors.As(err, &pmErr):
		return http.StatusUnprocessableEntity, pmErr.Error(), true
	case errors.As(err, &tmErr):
		return http.StatusUnprocessableEntity, tmErr.Error(), true
	case errors.As(err, &minErr):
		return http.StatusUnprocessableEntity, minErr.Error(), true
	}

	switch {
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return http.StatusUnprocessableEntity, "invalid discount code", true
	case errors.Is(err, coupon.ErrCouponExpired):
		return http.StatusUnprocessableEntity, "discount code expired", true
	case errors.Is(err, coupon.ErrCouponUsageLimitReached):
		return http.StatusUnprocessableEntity, "discount code usage limit reached", true
	}
	return 0, "", false
}

func decodePlaceOrder(d *jx.Decoder) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return errors.Wrapf(err, "item %d", len(req.Items))
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "shipping":
			req.Shipping, err = decodeShipping(d)
		case "paymentMethod":
			var m string
			m, err = wire.OptString(d)
			req.PaymentMethod = order.PaymentMethod(m)
		case "shippingCost":
			req.ShippingCost, err = wire.Decimal(d)
		case "codCharges":
			req.CODCharges, err = wire.Decimal(d)
		case "discountCode":
			req.DiscountCode, err = wire.OptString(d)
		case "discountAmount":
			req.DiscountAmount, err = wire.Decimal(d)
		case "total":
			req.Total, err = wire.Decimal(d)
		case "payment":
			if d.Next() == jx.Null {
				return d.Null()
			}
			p := &order.Payment{}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "orderId":
					p.OrderID, err = wire.OptString(d)
				case "paymentId":
					p.PaymentID, err = wire.OptString(d)
				case "signature":
					p.Signature, err = wire.OptString(d)
				default:
					err = d.Skip()
				}
				return err
			})
			req.Payment = p
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return req, err
}

func decodeItem(d *jx.Decoder) (order.Item, error) {
	var item order.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = wire.OptString(d)
		case "name":
			item.Name, err = wire.OptString(d)
		case "price":
			item.Price, err = wire.Decimal(d)
		case "quantity":
			item.Quantity, err = wire.Int(d)
		case "selectedSize":
			item.Size, err = wire.OptString(d)
		case "selectedColor":
			item.Color, err = wire.OptString(d)
		case "sku":
			item.SKU, err = wire.OptString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

func decodeShipping(d *jx.Decoder) (order.Shipping, error) {
	var s order.Shipping
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "name":
			dst = &s.Name
		case "email":
			dst = &s.Email
		case "phone":
			dst = &s.Phone
		case "address":
			dst = &s.Address
		case "city":
			dst = &s.City
		case "state":
			dst = &s.State
		case "postalCode":
			dst = &s.PostalCode
		case "country":
			dst = &s.Country
		default:
			return d.Skip()
		}
		v, err := wire.OptString(d)
		*dst = v
		return err
	})
	return s, err
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(o.ID)
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("name")
		e.Str(item.Name)
		wire.MoneyField(e, "price", item.Price)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		wire.StrField(e, "selectedSize", item.Size)
		wire.StrField(e, "selectedColor", item.Color)
		wire.StrField(e, "sku", item.SKU)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("shipping")
	e.ObjStart()
	for _, f := range []struct{ name, value string }{
		{"name", o.Shipping.Name},
		{"email", o.Shipping.Email},
		{"phone", o.Shipping.Phone},
		{"address", o.Shipping.Address},
		{"city", o.Shipping.City},
		{"state", o.Shipping.State},
		{"postalCode", o.Shipping.PostalCode},
		{"country", o.Shipping.Country},
	} {
		e.FieldStart(f.name)
		e.Str(f.value)
	}
	e.ObjEnd()
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	wire.MoneyField(e, "subtotal", o.Subtotal)
	wire.MoneyField(e, "shippingCost", o.ShippingCost)
	wire.MoneyField(e, "codCharges", o.CODCharges)
	wire.StrField(e, "discountCode", o.DiscountCode)
	wire.MoneyField(e, "discountAmount", o.DiscountAmount)
	wire.MoneyField(e, "total", o.Total)
	e.FieldStart("status")
	e.Str(o.Status)
	wire.StrField(e, "paymentId", o.PaymentID)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
