package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how an order is paid.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

// Status values of a stored order.
const (
	StatusPlaced = "placed"
	StatusPaid   = "paid"
)

// Order represents a placed customer order.
type Order struct {
	ID             string
	Items          []Item
	Shipping       Shipping
	PaymentMethod  PaymentMethod
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	CODCharges     decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	Status         string
	PaymentID      string
	CreatedAt      time.Time
}

// Item is a single order line. Price is the tax-inclusive unit price.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"selectedSize,omitempty"`
	Color     string          `json:"selectedColor,omitempty"`
	SKU       string          `json:"sku,omitempty"`
}

// Subtotal is Price × Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Shipping is the delivery and contact block.
type Shipping struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Payment is the gateway proof attached to online orders.
type Payment struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
}

// Publisher announces placed orders. Delivery is best-effort.
type Publisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
}
