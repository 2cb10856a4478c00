package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, items, shipping, payment_method, subtotal, shipping_cost,
		cod_charges, discount_code, discount_amount, total, status, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getOrderByIDSQL = `SELECT id, items, shipping, payment_method, subtotal, shipping_cost,
		cod_charges, discount_code, discount_amount, total, status, payment_id, created_at
		FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and shipping are serialized to JSON for
// storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	shippingJSON, err := json.Marshal(o.Shipping)
	if err != nil {
		return errors.Wrap(err, "marshal order shipping")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, itemsJSON, shippingJSON, string(o.PaymentMethod), o.Subtotal, o.ShippingCost,
		o.CODCharges, o.DiscountCode, o.DiscountAmount, o.Total, o.Status, o.PaymentID, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}

	return nil
}

// GetByID loads an order. Returns order.ErrNotFound when it does not exist.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o            order.Order
		method       string
		itemsJSON    []byte
		shippingJSON []byte
	)
	if err := row.Scan(
		&o.ID, &itemsJSON, &shippingJSON, &method, &o.Subtotal, &o.ShippingCost,
		&o.CODCharges, &o.DiscountCode, &o.DiscountAmount, &o.Total, &o.Status, &o.PaymentID, &o.CreatedAt,
	); err != nil {
		return o, err
	}
	o.PaymentMethod = order.PaymentMethod(method)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}
	if err := json.Unmarshal(shippingJSON, &o.Shipping); err != nil {
		return o, errors.Wrap(err, "unmarshal order shipping")
	}
	return o, nil
}
