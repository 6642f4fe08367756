package order

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/user"
)

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrConcurrentUpdate is returned when the stored status changed between
	// read and write.
	ErrConcurrentUpdate = errors.New("order status changed concurrently")
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses.
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether an order in status s may move to next.
// Orders only move forward and never return to PENDING.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// InvalidTransitionError indicates a status change that the lifecycle forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Item is an order line. It carries its own name and price snapshot and is
// never refreshed from the catalog.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	PriceAtTime decimal.Decimal
}

// Subtotal returns PriceAtTime * Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a priced, addressed record created from a cart at checkout.
// Total is fixed at creation.
type Order struct {
	ID              string
	UserID          string
	Items           []Item
	Total           decimal.Decimal
	Status          Status
	ShippingAddress user.Address
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WithStatus returns a copy of o moved to next, or an error if the lifecycle
// does not allow it. o itself is left untouched.
func (o Order) WithStatus(next Status, at time.Time) (Order, error) {
	if !o.Status.CanTransitionTo(next) {
		return Order{}, &InvalidTransitionError{From: o.Status, To: next}
	}
	o.Items = slices.Clone(o.Items)
	o.Status = next
	o.UpdatedAt = at
	return o, nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Save persists the order header and all of its lines.
	Save(ctx context.Context, o Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the stored order from one status to another and
	// fails with ErrConcurrentUpdate if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
}
