package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/user"
)

// Factory builds new orders from validated reservations.
type Factory struct {
	newID func() string
	now   func() time.Time
}

// NewFactory creates a Factory using newID for line identifiers and now as
// the creation clock.
func NewFactory(newID func() string, now func() time.Time) *Factory {
	return &Factory{newID: newID, now: now}
}

// Build assembles a PENDING order. Drafts must be non-empty; callers get that
// guarantee from cart.Snapshot.
func (f *Factory) Build(orderID, userID string, drafts []product.Reservation, addr user.Address) Order {
	if len(drafts) == 0 {
		panic("order: build called with no items")
	}

	// Postgres keeps microseconds.
	now := f.now().UTC().Truncate(time.Microsecond)

	items := make([]Item, len(drafts))
	total := decimal.Zero
	for i, d := range drafts {
		items[i] = Item{
			ID:          f.newID(),
			OrderID:     orderID,
			ProductID:   d.ProductID,
			ProductName: d.ProductName,
			Quantity:    d.Quantity,
			PriceAtTime: d.PriceAtTime,
		}
		total = total.Add(items[i].Subtotal())
	}

	return Order{
		ID:              orderID,
		UserID:          userID,
		Items:           items,
		Total:           total,
		Status:          StatusPending,
		ShippingAddress: addr,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
