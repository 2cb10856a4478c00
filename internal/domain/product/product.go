package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item. The order-construction core consumes
// only this shape; browsing and search live elsewhere.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	Category      string
	Images        []string
	Variants      []Variant
	StockQuantity int
}

// Variant is one purchasable size/colour combination of a product. A zero
// Price means the variant sells at the product price.
type Variant struct {
	Size  string
	Color string
	Price decimal.Decimal
	Stock int
	SKU   string
}

// HasVariants reports whether the product declares any variants.
func (p *Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// FindVariant returns the first variant matching every non-empty attribute.
func (p *Product) FindVariant(size, color string) (Variant, bool) {
	for _, v := range p.Variants {
		if size != "" && v.Size != size {
			continue
		}
		if color != "" && v.Color != color {
			continue
		}
		return v, true
	}
	return Variant{}, false
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
