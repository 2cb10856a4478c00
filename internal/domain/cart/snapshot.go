package cart

import (
	"bytes"
	"math"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/wire"
)

// Report describes what Decode had to repair.
type Report struct {
	// Corrupt is set when the snapshot was discarded.
	Corrupt bool
	Reason  string
	// Drift is set when stored totals disagreed with the lines.
	Drift string
}

// Encode serialises the basket as {"items":[...],"total":n,"itemCount":n}.
func Encode(s State) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range s.Lines {
		EncodeLine(e, l)
	}
	e.ArrEnd()
	wire.MoneyField(e, "total", s.Total)
	e.FieldStart("itemCount")
	e.Int(s.UnitCount)
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

// EncodeLine writes one line in snapshot form.
func EncodeLine(e *jx.Encoder, l Line) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(l.ProductID)
	e.FieldStart("name")
	e.Str(l.Name)
	wire.MoneyField(e, "price", l.UnitPrice)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	wire.StrField(e, "selectedSize", l.Size)
	wire.StrField(e, "selectedColor", l.Color)
	wire.StrField(e, "sku", l.SKU)
	wire.StrField(e, "category", l.Category)
	wire.StrField(e, "image", l.Image)
	e.FieldStart("stock")
	e.Int(l.Stock)
	e.ObjEnd()
}

// Decode parses a snapshot. It never fails: a missing snapshot is the empty
// basket, a malformed one is reported as corrupt and replaced by the empty
// basket, and stored totals are always re-derived from the lines.
func Decode(data []byte) (State, Report) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Empty(), Report{}
	}

	var raw rawSnapshot
	if err := raw.decode(jx.DecodeBytes(data)); err != nil {
		return Empty(), Report{Corrupt: true, Reason: err.Error()}
	}
	if !raw.hasItems {
		return Empty(), Report{Corrupt: true, Reason: "items missing"}
	}

	var s State
	for _, l := range raw.items {
		s = Merge(s, State{Lines: []Line{l}})
	}
	s = s.recompute()

	var rep Report
	switch {
	case raw.hasTotal && (!raw.totalOK || !raw.total.Equal(s.Total)):
		rep.Drift = "stored total " + raw.totalRaw + " != " + s.Total.String()
	case raw.hasCount && (!raw.countOK || raw.count != s.UnitCount):
		rep.Drift = "stored itemCount " + raw.countRaw + " disagrees with lines"
	}
	return s, rep
}

type rawSnapshot struct {
	items    []Line
	hasItems bool

	hasTotal bool
	totalOK  bool
	total    decimal.Decimal
	totalRaw string

	hasCount bool
	countOK  bool
	count    int
	countRaw string
}

func (r *rawSnapshot) decode(d *jx.Decoder) error {
	if d.Next() != jx.Object {
		return errors.New("snapshot is not an object")
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() != jx.Array {
				return errors.New("items is not an array")
			}
			r.hasItems = true
			return d.Arr(func(d *jx.Decoder) error {
				l, err := DecodeLine(d)
				if err != nil {
					return errors.Wrapf(err, "item %d", len(r.items))
				}
				r.items = append(r.items, l)
				return nil
			})
		case "total":
			r.hasTotal = true
			v, raw, err := wire.LooseDecimal(d)
			r.totalRaw = raw
			if err == nil && !v.IsNegative() {
				r.total, r.totalOK = v, true
			}
			return nil
		case "itemCount":
			r.hasCount = true
			v, raw, err := wire.LooseDecimal(d)
			r.countRaw = raw
			if err == nil && v.IsInteger() && !v.IsNegative() && v.LessThanOrEqual(maxStock) {
				r.count, r.countOK = int(v.IntPart()), true
			}
			return nil
		default:
			return d.Skip()
		}
	})
}

var (
	maxQuantity = decimal.NewFromInt(MaxQuantity)
	maxStock    = decimal.NewFromInt(math.MaxInt32)
)

// DecodeLine reads one line. productId, price and quantity are required;
// price must be non-negative and quantity an integer between one and
// MaxQuantity.
func DecodeLine(d *jx.Decoder) (Line, error) {
	var l Line
	var hasID, hasPrice, hasQty bool
	if d.Next() != jx.Object {
		return l, errors.New("line is not an object")
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			l.ProductID, err = wire.OptString(d)
			hasID = l.ProductID != ""
		case "name":
			l.Name, err = wire.OptString(d)
		case "price":
			l.UnitPrice, err = wire.Decimal(d)
			if err == nil && l.UnitPrice.IsNegative() {
				err = errors.New("negative price")
			}
			hasPrice = err == nil
		case "quantity":
			var v decimal.Decimal
			v, err = wire.Decimal(d)
			if err == nil && (!v.IsInteger() || v.LessThan(decimal.NewFromInt(1)) || v.GreaterThan(maxQuantity)) {
				err = errors.Errorf("invalid quantity %s", v)
			}
			l.Quantity = int(v.IntPart())
			hasQty = err == nil
		case "selectedSize":
			l.Size, err = wire.OptString(d)
		case "selectedColor":
			l.Color, err = wire.OptString(d)
		case "sku":
			l.SKU, err = wire.OptString(d)
		case "category":
			l.Category, err = wire.OptString(d)
		case "image":
			l.Image, err = wire.OptString(d)
		case "stock":
			var v decimal.Decimal
			v, _, err = wire.LooseDecimal(d)
			if err == nil && v.IsPositive() {
				l.Stock = int(decimal.Min(v, maxStock).IntPart())
			}
			err = nil
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return l, err
	}
	switch {
	case !hasID:
		return l, errors.New("productId missing")
	case !hasPrice:
		return l, errors.New("price missing")
	case !hasQty:
		return l, errors.New("quantity missing")
	}
	return l, nil
}
