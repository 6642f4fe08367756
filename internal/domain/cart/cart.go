package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by repositories when the user has no cart.
	ErrNotFound = errors.New("cart not found")
	// ErrEmpty is returned when there is nothing to check out.
	ErrEmpty = errors.New("cart is empty")
)

// Item is a pending purchase intent. Price is the snapshot taken when the
// item was added and may be stale by checkout time.
type Item struct {
	ID          string
	CartID      string
	ProductID   string
	ProductName string
	Price       decimal.Decimal
	Quantity    int
}

// Cart is the per-user collection of items awaiting checkout.
type Cart struct {
	ID     string
	UserID string
	Items  []Item
}

// Total returns the sum of snapshot price times quantity over all items.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// ItemCount returns the total number of units in the cart.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Reader loads carts with their items.
type Reader interface {
	FindByUserID(ctx context.Context, userID string) (*Cart, error)
}

// Writer mutates carts.
type Writer interface {
	Clear(ctx context.Context, cartID string) error
}

// Repository combines cart reads and writes.
type Repository interface {
	Reader
	Writer
}

// Snapshot loads the user's cart for checkout. A missing cart is reported
// the same way as an empty one.
func Snapshot(ctx context.Context, r Reader, userID string) (Cart, error) {
	c, err := r.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Cart{}, ErrEmpty
		}
		return Cart{}, errors.Wrap(err, "find cart")
	}
	if len(c.Items) == 0 {
		return Cart{}, ErrEmpty
	}
	return *c, nil
}
