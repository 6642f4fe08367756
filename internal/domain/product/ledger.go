package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// GoneError indicates a cart references a product that no longer exists.
type GoneError struct {
	ProductID string
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("Product %s no longer exists", e.ProductID)
}

// UnavailableError indicates the product is inactive or sold out.
type UnavailableError struct {
	ProductID string
	Name      string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("Product %q is not available", e.Name)
}

// InsufficientStockError indicates fewer units are available than requested.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for %q. Available: %d", e.Name, e.Available)
}

// Reservation is a validated order line draft. Name and price are read from
// the live product at validation time.
type Reservation struct {
	ProductID   string
	ProductName string
	Quantity    int
	PriceAtTime decimal.Decimal
}

// Ledger checks stock availability against the current catalog.
type Ledger struct {
	products Reader
}

// NewLedger creates a Ledger reading products from r.
func NewLedger(r Reader) *Ledger {
	return &Ledger{products: r}
}

// Reserve re-reads the product and verifies quantity units can be sold. It
// does not mutate stock; see Commit.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int) (Reservation, error) {
	p, err := l.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Reservation{}, &GoneError{ProductID: productID}
		}
		return Reservation{}, errors.Wrapf(err, "get product %s", productID)
	}

	if !p.InStock() {
		return Reservation{}, &UnavailableError{ProductID: p.ID, Name: p.Name}
	}
	if p.Stock < quantity {
		return Reservation{}, &InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Available: p.Stock,
			Requested: quantity,
		}
	}

	return Reservation{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    quantity,
		PriceAtTime: p.Price,
	}, nil
}

// Commit decrements stock for a reservation. Call it inside the transaction
// that persists the order.
func Commit(ctx context.Context, w StockWriter, r Reservation) error {
	return w.UpdateStock(ctx, r.ProductID, -r.Quantity)
}
