package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems           = errors.New("items required")
	ErrNotFound             = errors.New("order not found")
	ErrInvalidPaymentMethod = errors.New("payment method must be cod or online")
	ErrCODChargesNotAllowed = errors.New("cod charges are only allowed with cash on delivery")
	ErrPaymentRequired      = errors.New("online orders require a verified payment")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InvalidAmountError indicates a negative money field.
type InvalidAmountError struct {
	Field string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s must not be negative", e.Field)
}

// PriceMismatchError indicates a line price the catalog does not offer.
type PriceMismatchError struct {
	ProductID string
	Got       decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price %s is not offered for product %s", e.Got, e.ProductID)
}

// TotalMismatchError indicates the submitted total disagrees with the fold
// of the submitted fields.
type TotalMismatchError struct {
	Expected decimal.Decimal
	Got      decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total %s does not match expected %s", e.Got.StringFixed(2), e.Expected.StringFixed(2))
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items          []Item
	Shipping       Shipping
	PaymentMethod  PaymentMethod
	ShippingCost   decimal.Decimal
	CODCharges     decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	Payment        *Payment
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Service encapsulates order placement business logic.
type Service struct {
	products  product.Repository
	coupons   coupon.Validator
	orders    Repository
	publisher Publisher
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
// publisher may be nil.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	orders Repository,
	publisher Publisher,
) *Service {
	return &Service{
		products:  products,
		coupons:   coupons,
		orders:    orders,
		publisher: publisher,
		now:       time.Now,
	}
}

// Get returns a stored order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// PlaceOrder validates the request, checks line prices against the catalog,
// redeems the discount code, verifies that the submitted total is the fold
// subtotal + shipping + cod charges - discount (clamped at zero), persists
// the order and announces it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	products := make([]product.Product, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !offers(&p, item) {
			return nil, &PriceMismatchError{ProductID: item.ProductID, Got: item.Price}
		}
		products = append(products, p)
		subtotal = subtotal.Add(item.Subtotal())
	}
	subtotal = subtotal.Round(2)

	preDiscount := subtotal.Add(req.ShippingCost).Add(req.CODCharges)
	discountAmount := decimal.Zero
	code := coupon.Normalize(req.DiscountCode)
	if code != "" {
		d, err := s.coupons.Redeem(ctx, code, preDiscount)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discountAmount = d.Amount
	}

	expected := preDiscount.Sub(discountAmount)
	if expected.IsNegative() {
		expected = decimal.Zero
	}
	expected = expected.Round(2)
	if !expected.Equal(req.Total.Round(2)) {
		return nil, &TotalMismatchError{Expected: expected, Got: req.Total}
	}

	o := &Order{
		ID:             uuid.New().String(),
		Items:          req.Items,
		Shipping:       req.Shipping,
		PaymentMethod:  req.PaymentMethod,
		Subtotal:       subtotal,
		ShippingCost:   req.ShippingCost.Round(2),
		CODCharges:     req.CODCharges.Round(2),
		DiscountCode:   code,
		DiscountAmount: discountAmount.Round(2),
		Total:          expected,
		Status:         StatusPlaced,
		CreatedAt:      s.now().UTC(),
	}
	if req.Payment != nil {
		o.PaymentID = req.Payment.PaymentID
		o.Status = StatusPaid
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if s.publisher != nil {
		if err := s.publisher.OrderPlaced(ctx, o); err != nil {
			zctx.From(ctx).Warn("Publish order placed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	return &PlaceOrderResult{
		Order:    o,
		Products: products,
	}, nil
}

func validateRequest(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
		if item.Price.IsNegative() {
			return &InvalidAmountError{Field: "price"}
		}
	}
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"shippingCost", req.ShippingCost},
		{"codCharges", req.CODCharges},
		{"discountAmount", req.DiscountAmount},
		{"total", req.Total},
	} {
		if f.v.IsNegative() {
			return &InvalidAmountError{Field: f.name}
		}
	}
	switch req.PaymentMethod {
	case PaymentCOD:
	case PaymentOnline:
		if req.Payment == nil || req.Payment.PaymentID == "" {
			return ErrPaymentRequired
		}
		if req.CODCharges.IsPositive() {
			return ErrCODChargesNotAllowed
		}
	default:
		return ErrInvalidPaymentMethod
	}
	return nil
}

// offers reports whether the catalog sells item at its price: the product
// price, or the price of the matching variant.
func offers(p *product.Product, item Item) bool {
	if v, ok := p.FindVariant(item.Size, item.Color); ok && v.Price.IsPositive() {
		return v.Price.Equal(item.Price)
	}
	return p.Price.Equal(item.Price)
}
