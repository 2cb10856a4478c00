package client

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/wire"
)

var _ checkout.OrderSubmitter = (*Client)(nil)

// PlaceOrder posts o to /api/orders.
func (c *Client) PlaceOrder(ctx context.Context, o checkout.Order) (checkout.Placement, error) {
	body := encode(func(e *jx.Encoder) { checkout.EncodeOrder(e, o) })

	var (
		success = true
		message string
		placed  checkout.Placement
	)
	err := c.do(ctx, http.MethodPost, "/api/orders", body, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "success":
				success, err = wire.OptBool(d)
			case "message":
				message, err = wire.OptString(d)
			case "order":
				var got checkout.Order
				got, err = checkout.DecodeOrder(d)
				placed.OrderID = got.ID
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		return checkout.Placement{}, err
	}
	if !success || placed.OrderID == "" {
		if message == "" {
			message = "order was not accepted"
		}
		return checkout.Placement{}, &APIError{Status: http.StatusOK, Message: message}
	}
	return placed, nil
}
