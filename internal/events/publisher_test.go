package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

func testOrder() *order.Order {
	return &order.Order{
		ID:            "ord-1",
		PaymentMethod: order.PaymentCOD,
		Items: []order.Item{
			{ProductID: "tee", Price: decimal.NewFromInt(499), Quantity: 2},
			{ProductID: "cap", Price: decimal.NewFromInt(250), Quantity: 1},
		},
		Shipping:       order.Shipping{Email: "asha@example.com"},
		Subtotal:       decimal.NewFromInt(1248),
		DiscountCode:   "SAVE10",
		DiscountAmount: decimal.RequireFromString("124.8"),
		Total:          decimal.RequireFromString("1123.2"),
		Status:         order.StatusPlaced,
	}
}

func TestPublisher_OrderPlaced(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	pub := NewPublisherWithProducer(producer, "")
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return at }

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, TopicOrderPlaced, msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "ord-1", string(key))
		return nil
	})

	require.NoError(t, pub.OrderPlaced(context.Background(), testOrder()))
	require.NoError(t, pub.Close())
}

func TestPublisher_OrderPlaced_Error(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	pub := NewPublisherWithProducer(producer, "orders")

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := pub.OrderPlaced(context.Background(), testOrder())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), "send orders")
	require.NoError(t, pub.Close())
}

func TestEncodeOrderPlaced(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var got map[string]any
	require.NoError(t, json.Unmarshal(EncodeOrderPlaced(testOrder(), at), &got))

	assert.Equal(t, "order.placed", got["type"])
	assert.Equal(t, "ord-1", got["orderId"])
	assert.Equal(t, 2.0, got["lines"])
	assert.Equal(t, 3.0, got["units"])
	assert.Equal(t, 1123.2, got["total"])
	assert.Equal(t, "SAVE10", got["discountCode"])
	assert.Equal(t, "2026-03-01T10:00:00Z", got["occurredAt"])
}
