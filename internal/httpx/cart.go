package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetCart returns the caller's cart, creating an empty one on first access.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	c, err := h.carts.Get(r.Context(), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCartToResponse(c))
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req AddCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ArtworkID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "artwork_id is required")
		return
	}

	c, err := h.carts.AddItem(r.Context(), uid, req.ArtworkID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCartToResponse(c))
}

func (h *Handler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req SetCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.carts.SetItemQuantity(r.Context(), uid, chi.URLParam(r, "artworkID"), req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCartToResponse(c))
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	c, err := h.carts.RemoveItem(r.Context(), uid, chi.URLParam(r, "artworkID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCartToResponse(c))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.carts.Clear(r.Context(), uid); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
