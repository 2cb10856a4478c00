package client

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/wire"
)

// Products lists the catalog.
func (c *Client) Products(ctx context.Context) ([]product.Product, error) {
	var out []product.Product
	err := c.do(ctx, http.MethodGet, "/api/products", nil, func(d *jx.Decoder) error {
		return decodeProducts(d, &out)
	})
	return out, err
}

// Product returns one catalog entry or product.ErrNotFound.
func (c *Client) Product(ctx context.Context, id string) (*product.Product, error) {
	all, err := c.Products(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, errors.Wrap(product.ErrNotFound, id)
}

// decodeProducts accepts a bare array or an object wrapping it in
// "products" or "data".
func decodeProducts(d *jx.Decoder, out *[]product.Product) error {
	arr := func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			p, err := DecodeProduct(d)
			if err != nil {
				return err
			}
			*out = append(*out, p)
			return nil
		})
	}
	switch d.Next() {
	case jx.Array:
		return arr(d)
	case jx.Object:
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key == "products" || key == "data" {
				return arr(d)
			}
			return d.Skip()
		})
	default:
		return errors.New("unexpected catalog payload")
	}
}

// DecodeProduct reads {_id,name,price,category,images[],variants[],stockQuantity}.
func DecodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "_id", "id":
			p.ID, err = wire.OptString(d)
		case "name":
			p.Name, err = wire.OptString(d)
		case "price":
			p.Price, err = wire.Decimal(d)
		case "category":
			p.Category, err = wire.OptString(d)
		case "images":
			p.Images, err = wire.Strings(d)
		case "stockQuantity":
			p.StockQuantity, err = wire.Int(d)
		case "variants":
			if d.Next() == jx.Null {
				return d.Null()
			}
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := decodeVariant(d)
				if err != nil {
					return err
				}
				p.Variants = append(p.Variants, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return p, err
}

func decodeVariant(d *jx.Decoder) (product.Variant, error) {
	var v product.Variant
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "size":
			v.Size, err = wire.OptString(d)
		case "color":
			v.Color, err = wire.OptString(d)
		case "price":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v.Price, err = wire.Decimal(d)
		case "stock":
			v.Stock, err = wire.Int(d)
		case "sku":
			v.SKU, err = wire.OptString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return v, err
}

// EncodeProduct writes p in catalog form.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	wire.MoneyField(e, "price", p.Price)
	wire.StrField(e, "category", p.Category)
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(img)
	}
	e.ArrEnd()
	e.FieldStart("variants")
	e.ArrStart()
	for _, v := range p.Variants {
		e.ObjStart()
		wire.StrField(e, "size", v.Size)
		wire.StrField(e, "color", v.Color)
		if !v.Price.IsZero() {
			wire.MoneyField(e, "price", v.Price)
		}
		e.FieldStart("stock")
		e.Int(v.Stock)
		wire.StrField(e, "sku", v.SKU)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("stockQuantity")
	e.Int(p.StockQuantity)
	e.ObjEnd()
}
