// Package httpx is the HTTP surface of the order core: cart, checkout,
// orders, payments (including the provider webhook) and shipping.
//
// Identity arrives on the X-User-ID header; authentication is handled
// upstream at the edge.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safaricrafts/order-core/internal/cart"
	"github.com/safaricrafts/order-core/internal/catalog"
	"github.com/safaricrafts/order-core/internal/checkout"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/payment"
	"github.com/safaricrafts/order-core/internal/pkg/cache"
	"github.com/safaricrafts/order-core/internal/shipping"
)

const headerUserID = "X-User-ID"

// Handler handles incoming HTTP requests for the order core.
type Handler struct {
	carts    *cart.Service
	checkout *checkout.Service
	orders   *order.StateMachine
	payments *payment.Service
	shipping *shipping.Service
	cache    cache.Cache
}

func NewHandler(
	carts *cart.Service,
	co *checkout.Service,
	orders *order.StateMachine,
	payments *payment.Service,
	ship *shipping.Service,
	c cache.Cache,
) *Handler {
	return &Handler{
		carts:    carts,
		checkout: co,
		orders:   orders,
		payments: payments,
		shipping: ship,
		cache:    c,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID extracts the caller identity; a missing header is a 400 already
// written to w.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(headerUserID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "X-User-ID header is required")
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}

// writeDomainError maps sentinel errors from the domain services onto the
// HTTP taxonomy: validation 400, not-found 404, conflict 409, everything
// else 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, order.ErrRefundExceedsTotal),
		errors.Is(err, payment.ErrMissingExternalID),
		errors.Is(err, shipping.ErrWeightExceedsLimit):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())

	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, catalog.ErrArtworkNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, payment.ErrPaymentNotFound),
		errors.Is(err, shipping.ErrMethodNotFound),
		errors.Is(err, shipping.ErrMethodUnavailable),
		errors.Is(err, shipping.ErrShipmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, catalog.ErrArtworkUnavailable),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrOrderNotCancellable),
		errors.Is(err, order.ErrOrderNotRefundable),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, payment.ErrPaymentExists),
		errors.Is(err, payment.ErrOrderNotPayable),
		errors.Is(err, shipping.ErrShipmentExists),
		errors.Is(err, shipping.ErrOrderNotShippable):
		writeError(w, http.StatusConflict, "conflict", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
