package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-checkout/internal/domain/idempotency"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// OrderService is the part of order.Service the HTTP layer uses.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*order.Order, error)
	Cancel(ctx context.Context, userID, orderID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, next order.Status) (*order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithIdempotency enables Idempotency-Key handling on order placement.
func WithIdempotency(s idempotency.Store) Option {
	return func(h *Handler) { h.idem = s }
}

// Handler serves the order API.
type Handler struct {
	orders OrderService
	idem   idempotency.Store
}

// NewHandler constructs a Handler delegating to orders.
func NewHandler(orders OrderService, opts ...Option) *Handler {
	h := &Handler{orders: orders}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Mount registers the order routes on r behind sec.
func (h *Handler) Mount(r chi.Router, sec *SecurityHandler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(sec.Authenticate)

		r.Post("/", h.PlaceOrder)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/cancel", h.CancelOrder)
		r.With(sec.RequireRole(RoleAdmin)).Patch("/{id}/status", h.UpdateOrderStatus)
	})
}
