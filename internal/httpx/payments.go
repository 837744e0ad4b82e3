package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/safaricrafts/order-core/internal/payment"
)

const (
	maxWebhookBody   = 1 << 20 // 1 MiB
	statusCacheTTL   = 5 * time.Second
	statusCacheScope = "payment_status"
)

func (h *Handler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	var req InitializePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID == "" || req.Provider == "" || req.Method == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "order_id, provider and method are required")
		return
	}

	p, err := h.payments.Initialize(r.Context(), req.OrderID, req.Provider, req.Method)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapPaymentToResponse(p))
}

// InitiateMobilePayment triggers the mobile-money prompt on the customer's
// phone. The outcome arrives later on the webhook; the response only
// acknowledges dispatch.
func (h *Handler) InitiateMobilePayment(w http.ResponseWriter, r *http.Request) {
	var req MobilePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PaymentID == "" || req.PhoneNumber == "" || req.Provider == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "payment_id, phone_number and provider are required")
		return
	}

	p, _, err := h.payments.InitiateMobile(r.Context(), req.PaymentID, req.PhoneNumber, req.Provider)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.invalidateStatusCache(r, p.ID)
	writeJSON(w, http.StatusAccepted, mapPaymentToResponse(p))
}

// GetPaymentStatus serves the polling endpoint the storefront hits while the
// customer approves the mobile prompt. Reads go through a short-TTL cache so
// polling does not hammer the database.
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := h.cache.GenerateKey(statusCacheScope, id)

	if cached, err := h.cache.Get(r.Context(), key); err == nil && cached != "" {
		var resp PaymentStatusResponse
		if json.Unmarshal([]byte(cached), &resp) == nil {
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	p, err := h.payments.ByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := PaymentStatusResponse{ID: p.ID, Status: string(p.Status)}
	if buf, err := json.Marshal(resp); err == nil {
		if err := h.cache.Set(r.Context(), key, string(buf), statusCacheTTL); err != nil {
			slog.WarnContext(r.Context(), "payment status cache set failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AzamPayWebhook receives provider callbacks. 200 means the event is durably
// recorded (even when not yet fully processed), 400 is a malformed payload
// or missing correlation id, 404 an externalId no payment matches.
func (h *Handler) AzamPayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_body", err.Error())
		return
	}

	in, err := payment.DecodeWebhookBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_payload", err.Error())
		return
	}

	res, err := h.payments.HandleWebhook(r.Context(), in)
	switch {
	case errors.Is(err, payment.ErrMissingExternalID):
		writeError(w, http.StatusBadRequest, "missing_external_id", err.Error())
		return
	case errors.Is(err, payment.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "payment_not_found", "no payment matches externalId")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.invalidateStatusCache(r, in.ExternalID)
	writeJSON(w, http.StatusOK, WebhookResponse{
		EventID:   res.EventID,
		Duplicate: res.Duplicate,
		Processed: res.Processed,
		Status:    string(res.PaymentStatus),
	})
}

func (h *Handler) invalidateStatusCache(r *http.Request, paymentID string) {
	key := h.cache.GenerateKey(statusCacheScope, paymentID)
	if err := h.cache.Delete(r.Context(), key); err != nil {
		slog.WarnContext(r.Context(), "payment status cache invalidation failed", "error", err)
	}
}
