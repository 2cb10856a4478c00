package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/storage/memory"
	"github.com/xenking/kart-checkout/internal/telemetry"
)

// --- Fakes ---

type fakeDiscounts struct {
	mu      sync.Mutex
	fn      func(ctx context.Context, code string, amount decimal.Decimal) (Grant, error)
	amounts []decimal.Decimal
}

func (f *fakeDiscounts) ValidateDiscount(ctx context.Context, code string, amount decimal.Decimal) (Grant, error) {
	f.mu.Lock()
	f.amounts = append(f.amounts, amount)
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, code, amount)
}

func (f *fakeDiscounts) calls() []decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]decimal.Decimal(nil), f.amounts...)
}

// percentOff grants pct percent of the order amount for any code.
func percentOff(pct int64) func(context.Context, string, decimal.Decimal) (Grant, error) {
	return func(_ context.Context, code string, amount decimal.Decimal) (Grant, error) {
		v := decimal.NewFromInt(pct)
		return Grant{
			Code:   code,
			Kind:   "percentage",
			Value:  v,
			Amount: amount.Mul(v).Div(decimal.NewFromInt(100)).Round(2),
		}, nil
	}
}

func fixedOff(amount string) func(context.Context, string, decimal.Decimal) (Grant, error) {
	return func(_ context.Context, code string, _ decimal.Decimal) (Grant, error) {
		a := d(amount)
		return Grant{Code: code, Kind: "fixed", Value: a, Amount: a}, nil
	}
}

type fakeOrders struct {
	mu     sync.Mutex
	orders []Order
	err    error
	hook   func(ctx context.Context)
}

func (f *fakeOrders) PlaceOrder(ctx context.Context, o Order) (Placement, error) {
	f.mu.Lock()
	f.orders = append(f.orders, o)
	err, hook := f.err, f.hook
	n := len(f.orders)
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return Placement{}, err
	}
	return Placement{OrderID: "ord-" + string(rune('0'+n))}, nil
}

func (f *fakeOrders) placed() []Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Order(nil), f.orders...)
}

type fakeGateway struct {
	mu        sync.Mutex
	requests  []PaymentRequest
	proofs    []PaymentProof
	createErr error
	verifyErr error
}

func (f *fakeGateway) CreatePaymentOrder(_ context.Context, req PaymentRequest) (PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.createErr != nil {
		return PaymentOrder{}, f.createErr
	}
	return PaymentOrder{ID: "pay_order_1", Amount: req.Amount, Currency: req.Currency}, nil
}

func (f *fakeGateway) VerifyPayment(_ context.Context, p PaymentProof) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proofs = append(f.proofs, p)
	return f.verifyErr
}

type fakeFlow struct {
	mu     sync.Mutex
	opened []PaymentOrder
	err    error
}

func (f *fakeFlow) Open(_ context.Context, po PaymentOrder, _ Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, po)
	return f.err
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func validAddress() Address {
	return Address{
		Name:       "Asha Rao",
		Email:      "asha@example.com",
		Phone:      "9876543210",
		Address:    "12 MG Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		PostalCode: "560001",
	}
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Shipping = &pricing.ShippingPolicy{
		FreeShippingThreshold: d("999"),
		DefaultShippingCost:   d("99"),
	}
	return p
}

type harness struct {
	ctx       context.Context
	store     *cart.Store
	kv        *memory.Store
	discounts *fakeDiscounts
	orders    *fakeOrders
	gateway   *fakeGateway
	flow      *fakeFlow
	rec       *telemetry.Recorder
	o         *Orchestrator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		ctx:       context.Background(),
		kv:        memory.New(0),
		discounts: &fakeDiscounts{fn: percentOff(10)},
		orders:    &fakeOrders{},
		gateway:   &fakeGateway{},
		flow:      &fakeFlow{},
		rec:       &telemetry.Recorder{},
	}
	h.store = cart.NewStore(h.kv)
	require.NoError(t, h.store.Open(h.ctx, cart.Guest))

	opts = append([]Option{
		WithPolicy(testPolicy()),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }),
		WithIDs(func() string { return "fixed" }),
	}, opts...)
	h.o = New(h.store, Deps{
		Discounts: h.discounts,
		Orders:    h.orders,
		Gateway:   h.gateway,
		Flow:      h.flow,
		Receipts:  NewReceiptCache(h.kv),
		Sink:      h.rec,
	}, opts...)
	return h
}

func (h *harness) add(id, price string, qty int) {
	h.store.Add(h.ctx, cart.Candidate{ProductID: id, Name: "Item " + id, Price: d(price), Stock: 10}, qty)
}

func (h *harness) fill(t *testing.T, m PaymentMethod) {
	t.Helper()
	require.NoError(t, h.o.SetForm(validAddress()))
	require.NoError(t, h.o.SelectPayment(m))
}
