package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrStockConflict is returned by StockWriter when applying a delta would
	// drive stock below zero, i.e. a concurrent checkout took the units first.
	ErrStockConflict = errors.New("stock changed concurrently")
)

// Product is a catalog item with an available-to-sell counter.
type Product struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Stock  int
	Active bool
}

// InStock reports whether the product can be sold at all.
func (p Product) InStock() bool {
	return p.Active && p.Stock > 0
}

// Reader defines read operations for the product catalog.
type Reader interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}

// StockWriter applies stock deltas. Implementations must reject a delta that
// would make stock negative with ErrStockConflict.
type StockWriter interface {
	UpdateStock(ctx context.Context, id string, delta int) error
}

// Repository combines product reads and stock writes.
type Repository interface {
	Reader
	StockWriter
}
