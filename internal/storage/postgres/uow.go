package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

var _ order.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs order writes in a single PostgreSQL transaction.
type UnitOfWork struct {
	db TxBeginner
}

// NewUnitOfWork returns a UnitOfWork opening transactions on db.
func NewUnitOfWork(db TxBeginner) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// WithTransaction commits when fn returns nil and rolls back otherwise. The
// error from fn is returned as is.
func (u *UnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, txRepos{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Orders() order.Repository      { return NewOrderRepository(r.tx) }
func (r txRepos) Products() product.StockWriter { return NewProductRepository(r.tx) }
func (r txRepos) Carts() cart.Writer            { return NewCartRepository(r.tx) }
