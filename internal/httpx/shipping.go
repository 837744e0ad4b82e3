package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/safaricrafts/order-core/internal/shipping"
)

func (h *Handler) ListShippingMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.shipping.ActiveMethods(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]ShippingMethodResponse, len(methods))
	for i, m := range methods {
		out[i] = mapMethodToResponse(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateShipment books the shipment for a paid order and moves the order to
// processing.
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req CreateShipmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID == "" || req.WeightKg == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "order_id and weight_kg are required")
		return
	}
	weight, err := decimal.NewFromString(req.WeightKg)
	if err != nil || !weight.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid_request", "weight_kg must be a positive decimal")
		return
	}

	sh, err := h.shipping.CreateShipment(r.Context(), shipping.CreateShipmentRequest{
		OrderID:       req.OrderID,
		WeightKg:      weight,
		DeclaredValue: req.DeclaredValue,
		FromAddress:   req.FromAddress,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapShipmentToResponse(sh))
}

func (h *Handler) GetShipmentByTracking(w http.ResponseWriter, r *http.Request) {
	sh, err := h.shipping.ShipmentByTracking(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapShipmentToResponse(sh))
}

// IngestShipmentEvent records a carrier tracking update against the
// shipment and drives the order forward on milestones.
func (h *Handler) IngestShipmentEvent(w http.ResponseWriter, r *http.Request) {
	var req ShipmentEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "event_type is required")
		return
	}

	var occurredAt time.Time
	if req.OccurredAt != "" {
		var err error
		if occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "occurred_at must be RFC3339")
			return
		}
	}

	ev, err := h.shipping.IngestEvent(r.Context(), chi.URLParam(r, "trackingNumber"), shipping.TrackingUpdate{
		EventType:   req.EventType,
		Description: req.Description,
		Location:    req.Location,
		OccurredAt:  occurredAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapEventToResponse(ev))
}

func (h *Handler) ListShipmentEvents(w http.ResponseWriter, r *http.Request) {
	sh, err := h.shipping.ShipmentByTracking(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	events, err := h.shipping.Events(r.Context(), sh.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]ShipmentEventResponse, len(events))
	for i, ev := range events {
		out[i] = mapEventToResponse(ev)
	}
	writeJSON(w, http.StatusOK, out)
}
