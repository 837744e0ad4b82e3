package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(o))
}

// GetOrderHistory returns the append-only status audit trail, oldest first.
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.orders.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapHistoryToResponse(entries))
}

// CancelOrder cancels a pending or confirmed order with no successful
// payment. Racing cancels resolve to exactly one winner; the loser gets the
// conflict with the post-cancel state.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), uid, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(o))
}

// RefundOrder issues a refund against a paid order. Amount equal to the
// order total makes it a full refund and moves the order to refunded.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req RefundOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ref, err := h.orders.Refund(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Reason, uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RefundResponse{
		ID:      ref.ID,
		OrderID: ref.OrderID,
		Type:    string(ref.Type),
		Amount:  ref.Amount.Amount,
		Status:  string(ref.Status),
	})
}

// CompleteOrder closes out a delivered order.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	o, err := h.shipping.Complete(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(o))
}
