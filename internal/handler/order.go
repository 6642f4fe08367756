package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/idempotency"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 255
)

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFromContext(ctx)
	lg := zctx.From(ctx)

	body, err := decodePlaceOrder(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := r.Header.Get(idempotencyHeader)
	if len(key) > maxIdempotencyKey {
		writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
		return
	}
	if h.idem == nil {
		key = ""
	}
	if key != "" {
		orderID, err := h.idem.Begin(ctx, p.UserID, key)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeError(w, http.StatusConflict, "A request with this Idempotency-Key is in progress")
			return
		case err != nil:
			// Placement still runs; only the replay protection is lost.
			lg.Warn("Idempotency store unavailable", zap.Error(err))
			key = ""
		case orderID != "":
			o, err := h.orders.GetOrder(ctx, p.UserID, orderID)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			w.Header().Set("Location", "/api/orders/"+o.ID)
			writeOrder(w, http.StatusCreated, o)
			return
		}
	}

	o, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:            p.UserID,
		ShippingAddressID: body.ShippingAddressID,
	})
	if err != nil {
		if key != "" {
			if rerr := h.idem.Release(context.WithoutCancel(ctx), p.UserID, key); rerr != nil {
				lg.Warn("Release idempotency key", zap.Error(rerr))
			}
		}
		h.fail(w, r, err)
		return
	}

	if key != "" {
		if err := h.idem.Complete(context.WithoutCancel(ctx), p.UserID, key, o.ID); err != nil {
			lg.Warn("Complete idempotency key", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeOrder(w, http.StatusCreated, o)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())

	o, err := h.orders.GetOrder(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// CancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())

	o, err := h.orders.Cancel(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	body, err := decodeUpdateStatus(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}
