// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/wire"
)

// TopicOrderPlaced is the default topic for placed orders.
const TopicOrderPlaced = "order.placed"

// EventOrderPlaced is the type field of order-placed events.
const EventOrderPlaced = "order.placed"

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events with a synchronous producer, keyed by order
// id so that one order's events stay on one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

// NewPublisher dials brokers and returns a Publisher for topic.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.ClientID = "kart-api"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return NewPublisherWithProducer(producer, topic), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	if topic == "" {
		topic = TopicOrderPlaced
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// OrderPlaced publishes o.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(o.ID),
		Value:     sarama.ByteEncoder(EncodeOrderPlaced(o, p.now())),
		Timestamp: p.now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrapf(err, "send %s", p.topic)
	}

	zctx.From(ctx).Debug("Order event sent",
		zap.String("topic", p.topic),
		zap.String("order_id", o.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return errors.Wrap(err, "close kafka producer")
	}
	return nil
}

// EncodeOrderPlaced renders the event body.
func EncodeOrderPlaced(o *order.Order, at time.Time) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	units := 0
	for _, item := range o.Items {
		units += item.Quantity
	}

	e.ObjStart()
	e.FieldStart("type")
	e.Str(EventOrderPlaced)
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(o.Status)
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("lines")
	e.Int(len(o.Items))
	e.FieldStart("units")
	e.Int(units)
	wire.MoneyField(e, "subtotal", o.Subtotal)
	wire.MoneyField(e, "discountAmount", o.DiscountAmount)
	wire.MoneyField(e, "total", o.Total)
	wire.StrField(e, "discountCode", o.DiscountCode)
	wire.StrField(e, "email", o.Shipping.Email)
	e.FieldStart("occurredAt")
	e.Str(at.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}
