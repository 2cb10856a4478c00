package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// Grant is a discount resolved by the validator against a specific
// pre-discount total. It counts only while that total is unchanged.
type Grant struct {
	Code  string
	Kind  string
	Value decimal.Decimal
	// Amount is the money taken off the grand total.
	Amount decimal.Decimal
	// AppliedTo is the pre-discount total the grant was resolved against.
	AppliedTo decimal.Decimal
}

// Current reports whether the grant still applies to preDiscount.
func (g Grant) Current(preDiscount decimal.Decimal) bool {
	return g.AppliedTo.Equal(preDiscount)
}

// PaymentProof is what the payment flow hands back on success.
type PaymentProof struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Order is the immutable snapshot sent to the order endpoint. Lines are a
// deep copy of the basket taken at assembly time.
type Order struct {
	ID             string
	Lines          []cart.Line
	Shipping       Address
	PaymentMethod  PaymentMethod
	Subtotal       decimal.Decimal
	TaxRate        decimal.Decimal
	BaseAmount     decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingCost   decimal.Decimal
	CODSurcharge   decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	GrandTotal     decimal.Decimal
	Payment        *PaymentProof
}

// Placement is the server's confirmation of a placed order.
type Placement struct {
	OrderID string
}

// Receipt is the locally cached proof of a successful order.
type Receipt struct {
	OrderID  string
	PlacedAt time.Time
	Order    Order
}

// PaymentRequest creates a gateway order.
type PaymentRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

// PaymentOrder is the gateway-side order the payment flow is opened for.
type PaymentOrder struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
	Receipt  string
}

// DiscountValidator resolves a code against an order amount. A code that
// does not apply is reported as *DiscountRejectedError.
type DiscountValidator interface {
	ValidateDiscount(ctx context.Context, code string, orderAmount decimal.Decimal) (Grant, error)
}

// OrderSubmitter places orders.
type OrderSubmitter interface {
	PlaceOrder(ctx context.Context, o Order) (Placement, error)
}

// PaymentGateway is the server side of the online payment path.
type PaymentGateway interface {
	CreatePaymentOrder(ctx context.Context, req PaymentRequest) (PaymentOrder, error)
	VerifyPayment(ctx context.Context, proof PaymentProof) error
}

// PaymentFlow is the shopper-facing payment UI. Open starts it and returns;
// the outcome arrives later through Orchestrator.CompletePayment or
// Orchestrator.AbandonPayment.
type PaymentFlow interface {
	Open(ctx context.Context, po PaymentOrder, o Order) error
}

// ReceiptStore caches the last successful order.
type ReceiptStore interface {
	SaveReceipt(ctx context.Context, r Receipt) error
	LoadReceipt(ctx context.Context) (Receipt, bool, error)
	ClearReceipt(ctx context.Context) error
}
