package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

const (
	getCartSQL = `SELECT id, user_id FROM carts WHERE user_id = $1`

	// Name comes from the catalog; a removed product yields an empty name and
	// is reported by checkout.
	listCartItemsSQL = `SELECT ci.id, ci.cart_id, ci.product_id, COALESCE(p.name, ''), ci.price, ci.quantity
	FROM cart_items ci
	LEFT JOIN products p ON p.id = ci.product_id
	WHERE ci.cart_id = $1
	ORDER BY ci.created_at, ci.id`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db DBTX
}

// NewCartRepository returns a CartRepository that uses the given connection.
func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// FindByUserID loads the user's cart with its lines in insertion order.
func (r *CartRepository) FindByUserID(ctx context.Context, userID string) (*cart.Cart, error) {
	var c cart.Cart
	if err := r.db.QueryRow(ctx, getCartSQL, userID).Scan(&c.ID, &c.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart of %s", userID)
	}

	rows, err := r.db.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of cart %s", c.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.ProductName, &it.Price, &it.Quantity); err != nil {
			return nil, errors.Wrap(err, "scan cart item")
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate cart items")
	}

	return &c, nil
}

// Clear deletes every line of the cart. The cart row itself is kept.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	if _, err := r.db.Exec(ctx, clearCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "clear cart %s", cartID)
	}
	if _, err := r.db.Exec(ctx, touchCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "touch cart %s", cartID)
	}
	return nil
}
