package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/user"
)

const instrumentationName = "github.com/xenking/kart-checkout/internal/domain/order"

// Placement outcomes recorded on the orders.placed counter.
const (
	outcomePlaced     = "placed"
	outcomeRejected   = "rejected"
	outcomeRolledBack = "rolled_back"
	outcomeFailed     = "failed"
)

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID string
	// ShippingAddressID selects one of the user's addresses. When empty the
	// default address is used.
	ShippingAddressID string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how order and line identifiers are generated.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithTracerProvider sets the provider used for placement spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the provider used for the placement counter.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// Service converts carts into orders and manages the order lifecycle.
type Service struct {
	users  user.Repository
	carts  cart.Reader
	ledger *product.Ledger
	orders Repository
	uow    UnitOfWork

	factory *Factory
	newID   func() string
	now     func() time.Time

	tracer trace.Tracer
	meter  metric.Meter
	placed metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
// Writes go through uow; orders is used for reads outside a transaction.
func NewService(
	users user.Repository,
	carts cart.Reader,
	products product.Reader,
	orders Repository,
	uow UnitOfWork,
	opts ...Option,
) *Service {
	s := &Service{
		users:  users,
		carts:  carts,
		ledger: product.NewLedger(products),
		orders: orders,
		uow:    uow,
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	placed, err := s.meter.Int64Counter("orders.placed",
		metric.WithDescription("Order placement attempts by outcome"),
	)
	if err != nil {
		placed, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("orders.placed")
	}
	s.placed = placed
	s.factory = NewFactory(s.newID, s.now)

	return s
}

// PlaceOrder turns the user's cart into an order.
//
// User, address, cart and every line are resolved and validated first, with
// no writes; the first failing line aborts the placement. The order is then
// saved, stock decremented per line and the cart cleared in one transaction.
// Errors from inside the transaction are returned unwrapped after rollback.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("user.id", req.UserID)),
	)
	outcome := outcomeRejected
	defer func() {
		s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.SetAttributes(attribute.String("order.outcome", outcome))
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}()

	lg := zctx.From(ctx).With(zap.String("user_id", req.UserID))

	u, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, err
		}
		outcome = outcomeFailed
		return nil, errors.Wrap(err, "get user")
	}

	addr, err := user.ResolveAddress(*u, req.ShippingAddressID)
	if err != nil {
		return nil, err
	}

	c, err := cart.Snapshot(ctx, s.carts, u.ID)
	if err != nil {
		if !errors.Is(err, cart.ErrEmpty) {
			outcome = outcomeFailed
		}
		return nil, err
	}

	drafts := make([]product.Reservation, 0, len(c.Items))
	for _, item := range c.Items {
		r, err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			if !isValidationError(err) {
				outcome = outcomeFailed
			}
			return nil, err
		}
		drafts = append(drafts, r)
	}

	o := s.factory.Build(s.newID(), u.ID, drafts, addr)
	span.SetAttributes(attribute.String("order.id", o.ID))
	if !o.Total.Equal(c.Total()) {
		lg.Debug("Prices changed since items were added to cart",
			zap.String("order_id", o.ID),
			zap.Stringer("cart_total", c.Total()),
			zap.Stringer("order_total", o.Total),
		)
	}
	lg.Debug("Items validated", zap.String("order_id", o.ID), zap.Int("units", c.ItemCount()))

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Orders().Save(ctx, o); err != nil {
			return err
		}
		for _, d := range drafts {
			if err := product.Commit(ctx, tx.Products(), d); err != nil {
				return err
			}
		}
		return tx.Carts().Clear(ctx, c.ID)
	})
	if err != nil {
		outcome = outcomeRolledBack
		lg.Warn("Order placement rolled back", zap.String("order_id", o.ID), zap.Error(err))
		return nil, err
	}

	outcome = outcomePlaced
	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.Int("items", len(o.Items)),
		zap.Stringer("total", o.Total),
	)
	return &o, nil
}

// GetOrder returns one of the user's orders. Orders owned by someone else are
// reported as ErrNotFound.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Cancel cancels one of the user's orders and returns its units to stock.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (*Order, error) {
	return s.transition(ctx, orderID, StatusCancelled, func(o Order) error {
		if o.UserID != userID {
			return ErrNotFound
		}
		return nil
	})
}

// UpdateStatus moves an order along its lifecycle. Moving to CANCELLED
// restocks every line in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	return s.transition(ctx, orderID, next, nil)
}

func (s *Service) transition(ctx context.Context, orderID string, next Status, check func(Order) error) (*Order, error) {
	var updated Order
	err := s.uow.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(*current); err != nil {
				return err
			}
		}

		updated, err = current.WithStatus(next, s.now().UTC().Truncate(time.Microsecond))
		if err != nil {
			return err
		}
		if err := tx.Orders().UpdateStatus(ctx, current.ID, current.Status, updated.Status, updated.UpdatedAt); err != nil {
			return err
		}

		if next != StatusCancelled {
			return nil
		}
		for _, it := range current.Items {
			err := tx.Products().UpdateStock(ctx, it.ProductID, it.Quantity)
			if errors.Is(err, product.ErrNotFound) {
				zctx.From(ctx).Warn("Skipping restock of deleted product",
					zap.String("order_id", current.ID),
					zap.String("product_id", it.ProductID),
				)
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", updated.ID),
		zap.String("status", string(updated.Status)),
	)
	return &updated, nil
}

func isValidationError(err error) bool {
	var (
		gone  *product.GoneError
		unav  *product.UnavailableError
		short *product.InsufficientStockError
	)
	return errors.As(err, &gone) || errors.As(err, &unav) || errors.As(err, &short)
}
