package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

var _ checkout.PaymentFlow = (*terminalFlow)(nil)

// terminalFlow stands in for the gateway's hosted payment page: it prints
// the gateway order and asks the shopper for the payment id and signature
// the page returned.
type terminalFlow struct {
	in  *bufio.Reader
	out io.Writer

	opened *checkout.PaymentOrder
}

func newTerminalFlow(in io.Reader, out io.Writer) *terminalFlow {
	return &terminalFlow{in: bufio.NewReader(in), out: out}
}

func (f *terminalFlow) Open(_ context.Context, po checkout.PaymentOrder, o checkout.Order) error {
	f.opened = &po
	_, err := fmt.Fprintf(f.out, "Pay %s %s for gateway order %s (receipt %s, %d lines)\n",
		po.Amount.StringFixed(2), po.Currency, po.ID, po.Receipt, len(o.Lines))
	return err
}

// Collect reads the proof for the opened order. ok is false when the shopper
// left the payment id blank, which abandons the payment.
func (f *terminalFlow) Collect() (proof checkout.PaymentProof, ok bool, err error) {
	if f.opened == nil {
		return proof, false, errors.New("payment flow not opened")
	}
	paymentID, err := f.prompt("Payment id (blank to cancel): ")
	if err != nil || paymentID == "" {
		return proof, false, err
	}
	signature, err := f.prompt("Signature: ")
	if err != nil {
		return proof, false, err
	}
	return checkout.PaymentProof{
		OrderID:   f.opened.ID,
		PaymentID: paymentID,
		Signature: signature,
	}, true, nil
}

func (f *terminalFlow) prompt(label string) (string, error) {
	if _, err := io.WriteString(f.out, label); err != nil {
		return "", err
	}
	line, err := f.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "read input")
	}
	return strings.TrimSpace(line), nil
}
