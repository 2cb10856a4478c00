// Package cart is the basket state machine: identity resolution, a pure
// reducer over a tagged union of actions, a persisted single-writer store and
// guest-to-user migration.
package cart

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Key identifies a basket line. Two lines with equal keys are the same line.
type Key string

const keySep = "|"

// keyEscaper escapes the separator inside a part so distinct selections
// never join to the same key.
var keyEscaper = strings.NewReplacer(`\`, `\\`, keySep, `\`+keySep)

// ResolveKey derives the identity of a line from the product and the trimmed
// variant selection. It is total, deterministic and injective.
func ResolveKey(productID, size, color string) Key {
	return Key(keyEscaper.Replace(productID) +
		keySep + keyEscaper.Replace(strings.TrimSpace(size)) +
		keySep + keyEscaper.Replace(strings.TrimSpace(color)))
}

// Line is one basket entry. UnitPrice is tax-inclusive and snapshotted when
// the line was first added.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Size      string
	Color     string
	SKU       string
	Category  string
	Image     string
	Stock     int
}

// Key returns the line identity.
func (l Line) Key() Key {
	return ResolveKey(l.ProductID, l.Size, l.Color)
}

// Subtotal is UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Candidate is a product as offered for adding, together with the shopper's
// (possibly empty) variant selection.
type Candidate struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Category  string
	Image     string
	Stock     int
	Size      string
	Color     string
	Variants  []product.Variant
}

// NewCandidate builds a candidate from a catalog product and a selection.
func NewCandidate(p *product.Product, size, color string) Candidate {
	c := Candidate{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Category:  p.Category,
		Stock:     p.StockQuantity,
		Size:      size,
		Color:     color,
		Variants:  p.Variants,
	}
	if len(p.Images) > 0 {
		c.Image = p.Images[0]
	}
	return c
}

// resolve turns a candidate into a line with quantity zero. When the product
// has variants and nothing was selected, the first declared variant is the
// default. A matching variant overrides price, stock and SKU.
func (c Candidate) resolve() Line {
	size := strings.TrimSpace(c.Size)
	color := strings.TrimSpace(c.Color)
	if len(c.Variants) > 0 && size == "" && color == "" {
		size = c.Variants[0].Size
		color = c.Variants[0].Color
	}

	l := Line{
		ProductID: c.ProductID,
		Name:      c.Name,
		UnitPrice: c.Price,
		Size:      size,
		Color:     color,
		Category:  c.Category,
		Image:     c.Image,
		Stock:     c.Stock,
	}

	p := product.Product{Variants: c.Variants}
	if v, ok := p.FindVariant(size, color); ok {
		if v.Price.IsPositive() {
			l.UnitPrice = v.Price
		}
		l.Stock = v.Stock
		l.SKU = v.SKU
	}
	return l
}
