package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (
		id, user_id, status, total,
		ship_address_id, ship_street, ship_city, ship_state, ship_zip_code, ship_country,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, position, product_id, product_name, quantity, price_at_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getOrderSQL = `SELECT id, user_id, status, total,
		ship_address_id, ship_street, ship_city, ship_state, ship_zip_code, ship_country,
		created_at, updated_at
	FROM orders WHERE id = $1`

	listOrderItemsSQL = `SELECT id, order_id, product_id, product_name, quantity, price_at_time
	FROM order_items WHERE order_id = $1 ORDER BY position`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository returns an OrderRepository that uses the given connection.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save inserts the order header followed by its lines. It is meant to run in
// a transaction; on a bare pool a failed line leaves the header behind.
func (r *OrderRepository) Save(ctx context.Context, o order.Order) error {
	a := o.ShippingAddress
	_, err := r.db.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, string(o.Status), o.Total,
		a.ID, a.Street, a.City, a.State, a.ZipCode, a.Country,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %s", o.ID)
	}

	for i, it := range o.Items {
		_, err := r.db.Exec(ctx, insertOrderItemSQL,
			it.ID, o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.PriceAtTime,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order item %s", it.ID)
		}
	}

	return nil
}

// FindByID loads an order and its lines.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o      order.Order
		status string
		a      = &o.ShippingAddress
	)
	err := r.db.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.UserID, &status, &o.Total,
		&a.ID, &a.Street, &a.City, &a.State, &a.ZipCode, &a.Country,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	o.Status = order.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	rows, err := r.db.Query(ctx, listOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of order %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.PriceAtTime); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order items")
	}

	return &o, nil
}

// UpdateStatus performs a compare-and-set on the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return errors.Wrapf(err, "update status of order %s", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrConcurrentUpdate
	}
	return nil
}
