package checkout

import (
	"github.com/go-faster/errors"
)

var (
	// ErrEmptyBasket stops checkout before any network call.
	ErrEmptyBasket = errors.New("basket is empty")
	// ErrInProgress is returned when a submission or payment is already running.
	ErrInProgress = errors.New("checkout already in progress")
	// ErrCompleted is returned once the order has been placed.
	ErrCompleted = errors.New("order already placed")
	// ErrNoPendingPayment is returned by payment callbacks outside AwaitingPayment.
	ErrNoPendingPayment = errors.New("no payment pending")
	// ErrStaleResponse marks a response that arrived after the checkout or
	// basket it was issued for moved on. It carries no outcome.
	ErrStaleResponse = errors.New("stale response dropped")
	// ErrPaymentAbandoned is the cause recorded when the shopper closes the
	// payment flow without paying.
	ErrPaymentAbandoned = errors.New("payment abandoned")
	// ErrPaymentNotVerified is returned when the gateway rejects a signature.
	ErrPaymentNotVerified = errors.New("payment not verified")
)

// DiscountRejectedError is a validator verdict that the code does not apply.
type DiscountRejectedError struct {
	Code   string
	Reason string
}

func (e *DiscountRejectedError) Error() string {
	if e.Reason == "" {
		return "discount code " + e.Code + " rejected"
	}
	return e.Reason
}

// SubmitError is a submit-scoped failure. The basket and form are preserved
// and the shopper may retry.
type SubmitError struct {
	Op  string
	Err error
}

func (e *SubmitError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Retryable is always true; a submit error never loses the basket.
func (e *SubmitError) Retryable() bool { return true }
