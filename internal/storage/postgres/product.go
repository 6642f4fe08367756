package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

const (
	getProductSQL = `SELECT id, name, price, stock, active FROM products WHERE id = $1`

	// The guard keeps concurrent checkouts from overselling: the row is
	// locked by the update and re-checked against the committed stock.
	updateStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1 AND stock + $2 >= 0`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository returns a ProductRepository that uses the given connection.
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns the current catalog state of a product.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := r.db.QueryRow(ctx, getProductSQL, id).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", id)
	}
	return &p, nil
}

// UpdateStock adds delta to the product's stock. A decrement that would drive
// stock negative fails with product.ErrStockConflict; an increment of a
// missing product fails with product.ErrNotFound.
func (r *ProductRepository) UpdateStock(ctx context.Context, id string, delta int) error {
	tag, err := r.db.Exec(ctx, updateStockSQL, id, delta)
	if err != nil {
		return errors.Wrapf(err, "update stock of %s", id)
	}
	if tag.RowsAffected() == 0 {
		if delta < 0 {
			return product.ErrStockConflict
		}
		return product.ErrNotFound
	}
	return nil
}
