// Package wire holds the jx helpers shared by every JSON codec in the
// module: money is written as a JSON number and read from a number or a
// numeric string.
package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Money writes v as a JSON number.
func Money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

// MoneyField writes a "name": v pair.
func MoneyField(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	Money(e, v)
}

// StrField writes a "name": v pair, skipping it when v is empty.
func StrField(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.FieldStart(name)
	e.Str(v)
}

// Decimal accepts a JSON number or a numeric string.
func Decimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		return decimal.Zero, errors.New("expected number")
	}
}

// LooseDecimal is Decimal that always consumes the value, so a wrong type is
// reported without aborting the surrounding object. The second result is
// the raw text for diagnostics.
func LooseDecimal(d *jx.Decoder) (decimal.Decimal, string, error) {
	switch d.Next() {
	case jx.Number, jx.String:
		v, err := Decimal(d)
		return v, v.String(), err
	default:
		raw, err := d.Raw()
		if err != nil {
			return decimal.Zero, "", err
		}
		return decimal.Zero, string(raw), errors.New("expected number")
	}
}

// Int reads an integral number.
func Int(d *jx.Decoder) (int, error) {
	v, err := Decimal(d)
	if err != nil {
		return 0, err
	}
	if !v.IsInteger() {
		return 0, errors.Errorf("expected integer, got %s", v)
	}
	return int(v.IntPart()), nil
}

// OptString reads a string, treating null as "".
func OptString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Null:
		return "", d.Null()
	case jx.String:
		return d.Str()
	default:
		return "", errors.New("expected string")
	}
}

// OptBool reads a bool, treating null as false.
func OptBool(d *jx.Decoder) (bool, error) {
	switch d.Next() {
	case jx.Null:
		return false, d.Null()
	case jx.Bool:
		return d.Bool()
	default:
		return false, errors.New("expected bool")
	}
}

// Strings reads an array of strings; null is an empty slice.
func Strings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := OptString(d)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}
