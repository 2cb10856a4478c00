package checkout

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/wire"
)

// EncodeOrder writes o in the order endpoint's request shape.
func EncodeOrder(e *jx.Encoder, o Order) {
	e.ObjStart()
	wire.StrField(e, "_id", o.ID)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Lines {
		cart.EncodeLine(e, l)
	}
	e.ArrEnd()
	e.FieldStart("shipping")
	encodeAddress(e, o.Shipping)
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	wire.MoneyField(e, "subtotal", o.Subtotal)
	wire.MoneyField(e, "taxRate", o.TaxRate)
	wire.MoneyField(e, "baseAmount", o.BaseAmount)
	wire.MoneyField(e, "taxAmount", o.TaxAmount)
	wire.MoneyField(e, "shippingCost", o.ShippingCost)
	wire.MoneyField(e, "codCharges", o.CODSurcharge)
	wire.StrField(e, "discountCode", o.DiscountCode)
	wire.MoneyField(e, "discountAmount", o.DiscountAmount)
	wire.MoneyField(e, "total", o.GrandTotal)
	if p := o.Payment; p != nil {
		e.FieldStart("payment")
		e.ObjStart()
		e.FieldStart("orderId")
		e.Str(p.OrderID)
		e.FieldStart("paymentId")
		e.Str(p.PaymentID)
		e.FieldStart("signature")
		e.Str(p.Signature)
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a Address) {
	e.ObjStart()
	for _, f := range []struct{ name, value string }{
		{FieldName, a.Name},
		{FieldEmail, a.Email},
		{FieldPhone, a.Phone},
		{FieldAddress, a.Address},
		{FieldCity, a.City},
		{FieldState, a.State},
		{FieldPostalCode, a.PostalCode},
		{FieldCountry, a.Country},
	} {
		e.FieldStart(f.name)
		e.Str(f.value)
	}
	e.ObjEnd()
}

// DecodeOrder reads an order written by EncodeOrder. Unknown fields are
// skipped.
func DecodeOrder(d *jx.Decoder) (Order, error) {
	var o Order
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "_id":
			o.ID, err = wire.OptString(d)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				l, err := cart.DecodeLine(d)
				if err != nil {
					return err
				}
				o.Lines = append(o.Lines, l)
				return nil
			})
		case "shipping":
			o.Shipping, err = decodeAddress(d)
		case "paymentMethod":
			var m string
			m, err = wire.OptString(d)
			o.PaymentMethod = PaymentMethod(m)
		case "subtotal":
			o.Subtotal, err = wire.Decimal(d)
		case "taxRate":
			o.TaxRate, err = wire.Decimal(d)
		case "baseAmount":
			o.BaseAmount, err = wire.Decimal(d)
		case "taxAmount":
			o.TaxAmount, err = wire.Decimal(d)
		case "shippingCost":
			o.ShippingCost, err = wire.Decimal(d)
		case "codCharges":
			o.CODSurcharge, err = wire.Decimal(d)
		case "discountCode":
			o.DiscountCode, err = wire.OptString(d)
		case "discountAmount":
			o.DiscountAmount, err = wire.Decimal(d)
		case "total":
			o.GrandTotal, err = wire.Decimal(d)
		case "payment":
			if d.Next() == jx.Null {
				return d.Null()
			}
			p := &PaymentProof{}
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
			o.Payment = p
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return o, err
}

func decodeAddress(d *jx.Decoder) (Address, error) {
	var a Address
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case FieldName:
			dst = &a.Name
		case FieldEmail:
			dst = &a.Email
		case FieldPhone:
			dst = &a.Phone
		case FieldAddress:
			dst = &a.Address
		case FieldCity:
			dst = &a.City
		case FieldState:
			dst = &a.State
		case FieldPostalCode:
			dst = &a.PostalCode
		case FieldCountry:
			dst = &a.Country
		default:
			return d.Skip()
		}
		v, err := wire.OptString(d)
		*dst = v
		return err
	})
	return a, err
}

// EncodeReceipt serialises a receipt for the local cache.
func EncodeReceipt(r Receipt) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(r.OrderID)
	e.FieldStart("placedAt")
	e.Str(r.PlacedAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("order")
	EncodeOrder(e, r.Order)
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

// DecodeReceipt parses a cached receipt.
func DecodeReceipt(data []byte) (Receipt, error) {
	var r Receipt
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "orderId":
			v, err := wire.OptString(d)
			r.OrderID = v
			return err
		case "placedAt":
			v, err := wire.OptString(d)
			if err != nil {
				return err
			}
			r.PlacedAt, err = time.Parse(time.RFC3339Nano, v)
			return err
		case "order":
			o, err := DecodeOrder(d)
			r.Order = o
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Receipt{}, errors.Wrap(err, "decode receipt")
	}
	if r.OrderID == "" {
		return Receipt{}, errors.New("decode receipt: orderId missing")
	}
	return r, nil
}
