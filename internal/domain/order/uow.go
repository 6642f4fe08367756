package order

import (
	"context"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Tx exposes repositories bound to one open transaction.
type Tx interface {
	Orders() Repository
	Products() product.StockWriter
	Carts() cart.Writer
}

// UnitOfWork runs fn inside a transaction. If fn returns an error every write
// made through tx is rolled back and that error is returned as is; otherwise
// the transaction is committed.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
