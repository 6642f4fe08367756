package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/user"
)

// mapOrderError converts domain errors to a status code and client message.
// Anything unrecognised is a 500 with a generic message.
func mapOrderError(err error) (int, string) {
	switch {
	case errors.Is(err, cart.ErrEmpty):
		return http.StatusBadRequest, "Cart is empty"
	case errors.Is(err, user.ErrNoShippingAddress):
		return http.StatusBadRequest, "No shipping address available"
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, product.ErrStockConflict):
		return http.StatusConflict, "Stock changed during checkout, please retry"
	case errors.Is(err, order.ErrConcurrentUpdate):
		return http.StatusConflict, "Order was modified concurrently, please retry"
	}

	var (
		addrErr  *user.AddressNotFoundError
		goneErr  *product.GoneError
		unavErr  *product.UnavailableError
		stockErr *product.InsufficientStockError
		transErr *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &addrErr):
		return http.StatusBadRequest, addrErr.Error()
	case errors.As(err, &goneErr):
		return http.StatusBadRequest, goneErr.Error()
	case errors.As(err, &unavErr):
		return http.StatusBadRequest, unavErr.Error()
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, stockErr.Error()
	case errors.As(err, &transErr):
		return http.StatusConflict, transErr.Error()
	}

	return http.StatusInternalServerError, "internal error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := mapOrderError(err)
	if code >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, code, msg)
}
