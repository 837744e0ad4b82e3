package httpx

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/safaricrafts/order-core/internal/checkout"
)

// Checkout converts the caller's cart into an order. The conversion is
// all-or-nothing; any failure leaves cart, stock and order store untouched.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ShippingMethodID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "shipping_method_id is required")
		return
	}
	if req.ShippingAddress.Line1 == "" || req.ShippingAddress.City == "" || req.ShippingAddress.Country == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "shipping address must include line1, city and country")
		return
	}

	var weight decimal.Decimal
	if req.PackageWeightKg != "" {
		var err error
		if weight, err = decimal.NewFromString(req.PackageWeightKg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "package_weight_kg must be a decimal number")
			return
		}
	}

	o, err := h.checkout.Convert(r.Context(), checkout.ConvertRequest{
		UserID:           uid,
		ShippingAddress:  req.ShippingAddress,
		BillingAddress:   req.BillingAddress,
		SameAsShipping:   req.SameAsShipping,
		ShippingMethodID: req.ShippingMethodID,
		CustomerNotes:    req.CustomerNotes,
		PackageWeightKg:  weight,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(o))
}
