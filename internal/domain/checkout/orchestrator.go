package checkout

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/telemetry"
)

// State is the checkout lifecycle. Discount validation runs beside it and is
// reported by View.DiscountPending.
type State int

const (
	StateEntering State = iota
	StateValidatingForm
	StateSubmitting
	StateAwaitingPayment
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEntering:
		return "entering"
	case StateValidatingForm:
		return "validating_form"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingPayment:
		return "awaiting_payment"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Totals is the priced basket as the checkout page shows it.
type Totals struct {
	pricing.Quote
	Lines      int
	Units      int
	CODAllowed bool
	// DiscountStale is set while a grant exists that was resolved against a
	// different pre-discount total. Such a grant contributes nothing.
	DiscountStale bool
}

// View is a consistent read of the checkout.
type View struct {
	State           State
	Form            Form
	Totals          Totals
	Grant           *Grant
	DiscountPending bool
	DiscountError   string
	FieldErrors     FieldErrors
	SubmitError     error
	PaymentOrder    *PaymentOrder
	Receipt         *Receipt
}

// Deps are the collaborators of an Orchestrator. Gateway and Flow are only
// needed for online payment; Receipts is optional.
type Deps struct {
	Discounts DiscountValidator
	Orders    OrderSubmitter
	Gateway   PaymentGateway
	Flow      PaymentFlow
	Receipts  ReceiptStore
	Sink      telemetry.Sink
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithClock sets the receipt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDs sets the generator for payment receipt ids.
func WithIDs(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

type pendingPayment struct {
	order Order
	po    PaymentOrder
}

type paidOrder struct {
	order Order
	proof PaymentProof
}

// attempt identifies the checkout and basket a request was issued for.
type attempt struct {
	epoch    uint64
	revision uint64
	seq      uint64
}

// Orchestrator drives one checkout over a cart.Store. Its mutex is never
// held across a network call; every response is checked against the
// attempt that issued it and dropped when the checkout moved on.
type Orchestrator struct {
	mu     sync.Mutex
	cart   *cart.Store
	deps   Deps
	policy Policy
	now    func() time.Time
	newID  func() string

	epoch       uint64
	discountSeq uint64
	state       State
	form        Form
	grant       *Grant
	discPending bool
	discErr     string
	fieldErrs   FieldErrors
	submitErr   error
	pending     *pendingPayment
	paid        *paidOrder
	receipt     *Receipt
}

// New returns an orchestrator in StateEntering.
func New(store *cart.Store, deps Deps, opts ...Option) *Orchestrator {
	if deps.Sink == nil {
		deps.Sink = telemetry.Nop{}
	}
	o := &Orchestrator{
		cart:   store,
		deps:   deps,
		policy: DefaultPolicy(),
		now:    time.Now,
		newID:  uuid.NewString,
		form:   Form{Shipping: Address{Country: DefaultCountry}},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// View returns a snapshot of the checkout together with fresh totals.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		State:           o.state,
		Form:            o.form,
		Totals:          o.totalsLocked(o.cart.Snapshot()),
		DiscountPending: o.discPending,
		DiscountError:   o.discErr,
		FieldErrors:     o.fieldErrs,
		SubmitError:     o.submitErr,
	}
	if o.grant != nil {
		g := *o.grant
		v.Grant = &g
	}
	if o.pending != nil {
		po := o.pending.po
		v.PaymentOrder = &po
	}
	if o.receipt != nil {
		r := *o.receipt
		v.Receipt = &r
	}
	return v
}

// Totals prices the current basket.
func (o *Orchestrator) Totals() Totals {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totalsLocked(o.cart.Snapshot())
}

func (o *Orchestrator) totalsLocked(snap cart.State) Totals {
	p := o.policy
	cod := p.surcharge(o.form.PaymentMethod)
	pre := pricing.NewQuote(snap.Total, p.Tax, p.Shipping, cod, decimal.Zero).PreDiscount

	t := Totals{
		Lines:      snap.LineCount,
		Units:      snap.UnitCount,
		CODAllowed: p.CODAllowed(snap.Total),
	}
	discount := decimal.Zero
	if g := o.grant; g != nil {
		if g.Current(pre) {
			discount = g.Amount
		} else {
			t.DiscountStale = true
		}
	}
	t.Quote = pricing.NewQuote(snap.Total, p.Tax, p.Shipping, cod, discount)
	return t
}

func (o *Orchestrator) busyLocked() error {
	switch o.state {
	case StateSucceeded:
		return ErrCompleted
	case StateValidatingForm, StateSubmitting, StateAwaitingPayment:
		return ErrInProgress
	}
	return nil
}

// SetForm replaces the shipping and contact fields. The payment method is
// kept; use SelectPayment to change it.
func (o *Orchestrator) SetForm(a Address) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.busyLocked(); err != nil {
		return err
	}
	o.form.Shipping = a
	if o.state == StateFailed {
		o.state = StateEntering
	}
	return nil
}

// SelectPayment chooses the payment method. COD below the minimum is refused
// with a payment method field error and the previous choice is kept.
func (o *Orchestrator) SelectPayment(m PaymentMethod) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.busyLocked(); err != nil {
		return err
	}
	m = PaymentMethod(strings.ToLower(strings.TrimSpace(string(m))))
	if msg := o.policy.paymentProblem(m, o.cart.Snapshot().Total); msg != "" {
		errs := FieldErrors{FieldPaymentMethod: msg}
		o.fieldErrs = errs
		return errs
	}
	o.form.PaymentMethod = m
	if o.fieldErrs.Has(FieldPaymentMethod) {
		delete(o.fieldErrs, FieldPaymentMethod)
	}
	if o.state == StateFailed {
		o.state = StateEntering
	}
	return nil
}

// Validate checks the form without submitting.
func (o *Orchestrator) Validate() FieldErrors {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ValidateForm(o.form.Normalize(), o.cart.Snapshot().Total, o.policy)
}

func (o *Orchestrator) attemptLocked() attempt {
	return attempt{epoch: o.epoch, revision: o.cart.Revision(), seq: o.discountSeq}
}

func (o *Orchestrator) emit(ctx context.Context, kind telemetry.Kind, kv ...string) {
	o.deps.Sink.Emit(ctx, telemetry.New(kind, kv...))
}

func (o *Orchestrator) dropLocked(ctx context.Context, op string) error {
	o.emit(ctx, telemetry.StaleResponse, "op", op, "state", o.state.String())
	return ErrStaleResponse
}

// ApplyDiscount validates code against the current pre-discount total. The
// grant counts only while that total stays the same. A rejected code clears
// any previous grant; a transport failure keeps it.
func (o *Orchestrator) ApplyDiscount(ctx context.Context, code string) (Grant, error) {
	code = strings.TrimSpace(code)

	o.mu.Lock()
	if err := o.busyLocked(); err != nil {
		o.mu.Unlock()
		return Grant{}, err
	}
	if code == "" {
		o.discErr = "enter a discount code"
		o.mu.Unlock()
		return Grant{}, FieldErrors{FieldDiscountCode: "enter a discount code"}
	}
	snap := o.cart.Snapshot()
	if snap.IsEmpty() {
		o.mu.Unlock()
		return Grant{}, ErrEmptyBasket
	}
	pre := o.totalsLocked(snap).PreDiscount
	o.discountSeq++
	at := o.attemptLocked()
	o.discPending = true
	o.discErr = ""
	o.mu.Unlock()

	g, err := o.deps.Discounts.ValidateDiscount(ctx, code, pre)

	o.mu.Lock()
	defer o.mu.Unlock()
	if at.seq != o.discountSeq {
		return Grant{}, o.dropLocked(ctx, "discount")
	}
	o.discPending = false
	if at.epoch != o.epoch || at.revision != o.cart.Revision() {
		return Grant{}, o.dropLocked(ctx, "discount")
	}
	if err != nil {
		return Grant{}, o.rejectDiscountLocked(ctx, code, err)
	}
	g = o.acceptGrantLocked(ctx, code, pre, g)
	return g, nil
}

func (o *Orchestrator) rejectDiscountLocked(ctx context.Context, code string, err error) FieldErrors {
	msg := "could not validate discount code, try again"
	var rej *DiscountRejectedError
	if errors.As(err, &rej) {
		msg = rej.Error()
		o.grant = nil
	}
	o.discErr = msg
	o.emit(ctx, telemetry.DiscountRejected, "code", code, "error", err.Error())
	return FieldErrors{FieldDiscountCode: msg}
}

func (o *Orchestrator) acceptGrantLocked(ctx context.Context, code string, pre decimal.Decimal, g Grant) Grant {
	if g.Code == "" {
		g.Code = code
	}
	g.Amount = pricing.ClampZero(g.Amount).Round(2)
	g.AppliedTo = pre
	o.grant = &g
	o.discErr = ""
	o.emit(ctx, telemetry.DiscountApplied, "code", g.Code, "amount", g.Amount.String(), "applied_to", pre.String())
	return g
}

// RemoveDiscount drops the grant.
func (o *Orchestrator) RemoveDiscount() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.grant = nil
	o.discErr = ""
	o.discountSeq++
	o.discPending = false
}

// Submit validates the form, revalidates a stale discount, assembles the
// order and places it. For online payment it opens the payment flow instead
// and returns with the checkout in StateAwaitingPayment. The basket is only
// cleared after the server confirms the order.
func (o *Orchestrator) Submit(ctx context.Context) (Receipt, error) {
	order, at, err := o.prepare(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if order.PaymentMethod == PaymentOnline && order.Payment == nil {
		return Receipt{}, o.startPayment(ctx, at, order)
	}
	placed, err := o.deps.Orders.PlaceOrder(ctx, order)
	return o.complete(ctx, at, order, placed, err)
}

func (o *Orchestrator) prepare(ctx context.Context) (Order, attempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.busyLocked(); err != nil {
		return Order{}, attempt{}, err
	}
	snap := o.cart.Snapshot()
	if snap.IsEmpty() {
		return Order{}, attempt{}, ErrEmptyBasket
	}

	o.state = StateValidatingForm
	o.fieldErrs = nil
	o.submitErr = nil
	o.form = o.form.Normalize()
	if errs := ValidateForm(o.form, snap.Total, o.policy); len(errs) > 0 {
		o.state = StateFailed
		o.fieldErrs = errs
		return Order{}, attempt{}, errs
	}

	t := o.totalsLocked(snap)
	if o.grant != nil && t.DiscountStale {
		var err error
		if snap, t, err = o.revalidateLocked(ctx, snap, t); err != nil {
			return Order{}, attempt{}, err
		}
	}

	order := o.assembleLocked(snap, t)
	if p := o.paid; p != nil {
		if p.order.GrandTotal.Equal(order.GrandTotal) && order.PaymentMethod == PaymentOnline {
			order = p.order
		} else {
			o.paid = nil
		}
	}
	o.state = StateSubmitting
	return order, o.attemptLocked(), nil
}

// revalidateLocked re-runs the validator for a stale grant. The lock is
// released for the call and reacquired before returning.
func (o *Orchestrator) revalidateLocked(ctx context.Context, snap cart.State, t Totals) (cart.State, Totals, error) {
	code := o.grant.Code
	pre := t.PreDiscount
	o.discountSeq++
	at := o.attemptLocked()
	o.emit(ctx, telemetry.DiscountStale, "code", code, "applied_to", o.grant.AppliedTo.String(), "total", pre.String())

	o.mu.Unlock()
	g, err := o.deps.Discounts.ValidateDiscount(ctx, code, pre)
	o.mu.Lock()

	if at.epoch != o.epoch || at.seq != o.discountSeq || at.revision != o.cart.Revision() {
		if at.epoch == o.epoch {
			o.state = StateEntering
		}
		return snap, t, o.dropLocked(ctx, "discount")
	}
	if err != nil {
		errs := o.rejectDiscountLocked(ctx, code, err)
		o.state = StateFailed
		o.fieldErrs = errs
		return snap, t, errs
	}
	o.acceptGrantLocked(ctx, code, pre, g)
	return snap, o.totalsLocked(snap), nil
}

func (o *Orchestrator) assembleLocked(snap cart.State, t Totals) Order {
	lines := make([]cart.Line, len(snap.Lines))
	copy(lines, snap.Lines)

	order := Order{
		Lines:          lines,
		Shipping:       o.form.Shipping,
		PaymentMethod:  o.form.PaymentMethod,
		Subtotal:       t.Subtotal,
		TaxRate:        t.Tax.Rate,
		BaseAmount:     t.Tax.Base,
		TaxAmount:      t.Tax.Tax,
		ShippingCost:   t.Shipping,
		CODSurcharge:   t.CODSurcharge,
		DiscountAmount: t.Discount,
		GrandTotal:     t.GrandTotal,
	}
	if o.grant != nil && !t.DiscountStale {
		order.DiscountCode = o.grant.Code
	}
	return order
}

func (o *Orchestrator) startPayment(ctx context.Context, at attempt, order Order) error {
	if o.deps.Gateway == nil || o.deps.Flow == nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.failLocked(ctx, telemetry.PaymentFailed, "create payment order", errors.New("online payment unavailable"))
	}

	req := PaymentRequest{
		Amount:   order.GrandTotal,
		Currency: o.policy.Currency,
		Receipt:  "rcpt_" + o.newID(),
		Notes: map[string]string{
			"email": order.Shipping.Email,
			"items": strconv.Itoa(len(order.Lines)),
		},
	}
	po, err := o.deps.Gateway.CreatePaymentOrder(ctx, req)

	o.mu.Lock()
	if at.epoch != o.epoch {
		defer o.mu.Unlock()
		return o.dropLocked(ctx, "create payment order")
	}
	if err != nil {
		defer o.mu.Unlock()
		return o.failLocked(ctx, telemetry.PaymentFailed, "create payment order", err)
	}
	if po.Receipt == "" {
		po.Receipt = req.Receipt
	}
	o.pending = &pendingPayment{order: order, po: po}
	o.state = StateAwaitingPayment
	epoch := o.epoch
	o.mu.Unlock()

	o.emit(ctx, telemetry.PaymentOpened, "payment_order", po.ID, "amount", po.Amount.String())
	if err := o.deps.Flow.Open(ctx, po, order); err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if epoch != o.epoch || o.state != StateAwaitingPayment {
			return o.dropLocked(ctx, "open payment flow")
		}
		o.pending = nil
		return o.failLocked(ctx, telemetry.PaymentFailed, "open payment flow", err)
	}
	return nil
}

// CompletePayment is the payment flow's success callback. It verifies the
// proof with the gateway and places the order carrying it.
func (o *Orchestrator) CompletePayment(ctx context.Context, proof PaymentProof) (Receipt, error) {
	o.mu.Lock()
	if o.state != StateAwaitingPayment || o.pending == nil {
		o.mu.Unlock()
		return Receipt{}, ErrNoPendingPayment
	}
	p := *o.pending
	if proof.OrderID == "" {
		proof.OrderID = p.po.ID
	}
	if proof.OrderID != p.po.ID {
		defer o.mu.Unlock()
		o.pending = nil
		return Receipt{}, o.failLocked(ctx, telemetry.PaymentFailed, "verify payment",
			errors.Wrapf(ErrPaymentNotVerified, "proof for %q, expected %q", proof.OrderID, p.po.ID))
	}
	o.state = StateSubmitting
	o.pending = nil
	at := o.attemptLocked()
	o.mu.Unlock()

	if err := o.deps.Gateway.VerifyPayment(ctx, proof); err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if at.epoch != o.epoch {
			return Receipt{}, o.dropLocked(ctx, "verify payment")
		}
		return Receipt{}, o.failLocked(ctx, telemetry.PaymentFailed, "verify payment", err)
	}

	order := p.order
	order.Payment = &proof
	o.mu.Lock()
	o.paid = &paidOrder{order: order, proof: proof}
	o.mu.Unlock()

	placed, err := o.deps.Orders.PlaceOrder(ctx, order)
	return o.complete(ctx, at, order, placed, err)
}

// AbandonPayment is the payment flow's dismissal callback. The checkout
// fails retryably with the basket intact.
func (o *Orchestrator) AbandonPayment(ctx context.Context, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateAwaitingPayment {
		return ErrNoPendingPayment
	}
	o.pending = nil
	if reason == "" {
		reason = "closed by shopper"
	}
	return o.failLocked(ctx, telemetry.PaymentFailed, "payment", errors.Wrap(ErrPaymentAbandoned, reason))
}

func (o *Orchestrator) failLocked(ctx context.Context, kind telemetry.Kind, op string, err error) error {
	se := &SubmitError{Op: op, Err: err}
	o.state = StateFailed
	o.submitErr = se
	o.emit(ctx, kind, "op", op, "error", err.Error())
	return se
}

func (o *Orchestrator) complete(ctx context.Context, at attempt, order Order, placed Placement, err error) (Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if at.epoch != o.epoch {
		return Receipt{}, o.dropLocked(ctx, "place order")
	}
	if err != nil {
		return Receipt{}, o.failLocked(ctx, telemetry.OrderFailed, "place order", err)
	}

	order.ID = placed.OrderID
	r := Receipt{OrderID: placed.OrderID, PlacedAt: o.now(), Order: order}
	o.cart.Clear(ctx)

	cached := "true"
	if o.deps.Receipts != nil {
		if err := o.deps.Receipts.SaveReceipt(ctx, r); err != nil {
			cached = "false"
		}
	}
	o.state = StateSucceeded
	o.receipt = &r
	o.grant = nil
	o.paid = nil
	o.pending = nil
	o.emit(ctx, telemetry.OrderSubmitted,
		"order_id", r.OrderID,
		"payment_method", string(order.PaymentMethod),
		"total", order.GrandTotal.String(),
		"receipt_cached", cached,
	)
	return r, nil
}

// Reset abandons whatever is in flight; late responses are dropped. Form
// contents are kept.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.epoch++
	o.state = StateEntering
	o.fieldErrs = nil
	o.submitErr = nil
	o.discPending = false
	o.pending = nil
	o.receipt = nil
}

// Restore shows a cached receipt after a restart.
func (o *Orchestrator) Restore(ctx context.Context) (Receipt, bool, error) {
	if o.deps.Receipts == nil {
		return Receipt{}, false, nil
	}
	r, ok, err := o.deps.Receipts.LoadReceipt(ctx)
	if err != nil || !ok {
		return Receipt{}, false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateSucceeded
	o.receipt = &r
	return r, true, nil
}

// Dismiss forgets the cached receipt and starts a new checkout.
func (o *Orchestrator) Dismiss(ctx context.Context) error {
	if o.deps.Receipts != nil {
		if err := o.deps.Receipts.ClearReceipt(ctx); err != nil {
			return err
		}
	}
	o.Reset()
	return nil
}
