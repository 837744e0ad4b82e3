package httpx

import (
	"time"

	"github.com/safaricrafts/order-core/internal/cart"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/payment"
	"github.com/safaricrafts/order-core/internal/shipping"
)

type AddCartItemRequest struct {
	ArtworkID string `json:"artwork_id"`
	Quantity  int32  `json:"quantity"`
}

type SetCartItemRequest struct {
	Quantity int32 `json:"quantity"`
}

type CartItemResponse struct {
	ArtworkID string `json:"artwork_id"`
	Quantity  int32  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
}

type CartResponse struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Items      []CartItemResponse `json:"items"`
	TotalItems int32              `json:"total_items"`
	UpdatedAt  string             `json:"updated_at"`
}

type CheckoutRequest struct {
	ShippingAddress  order.Address `json:"shipping_address"`
	BillingAddress   order.Address `json:"billing_address"`
	SameAsShipping   bool          `json:"billing_same_as_shipping"`
	ShippingMethodID string        `json:"shipping_method_id"`
	CustomerNotes    string        `json:"customer_notes,omitempty"`
	PackageWeightKg  string        `json:"package_weight_kg,omitempty"`
}

type OrderItemResponse struct {
	ArtworkID string `json:"artwork_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Quantity  int32  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type OrderResponse struct {
	ID             string              `json:"id"`
	OrderNumber    string              `json:"order_number"`
	UserID         string              `json:"user_id"`
	Status         string              `json:"status"`
	Currency       string              `json:"currency"`
	Subtotal       int64               `json:"subtotal"`
	ShippingCost   int64               `json:"shipping_cost"`
	TaxAmount      int64               `json:"tax_amount"`
	DiscountAmount int64               `json:"discount_amount"`
	TotalAmount    int64               `json:"total_amount"`
	Items          []OrderItemResponse `json:"items"`
	CustomerNotes  string              `json:"customer_notes,omitempty"`
	CreatedAt      string              `json:"created_at"`
	ShippedAt      string              `json:"shipped_at,omitempty"`
	DeliveredAt    string              `json:"delivered_at,omitempty"`
}

type HistoryEntryResponse struct {
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
	Actor     string `json:"actor,omitempty"`
	Note      string `json:"note,omitempty"`
	ChangedAt string `json:"changed_at"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RefundOrderRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type RefundResponse struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Type    string `json:"type"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
}

type InitializePaymentRequest struct {
	OrderID  string `json:"order_id"`
	Provider string `json:"provider"`
	Method   string `json:"method"`
}

type MobilePaymentRequest struct {
	PaymentID   string `json:"payment_id"`
	PhoneNumber string `json:"phone_number"`
	Provider    string `json:"provider"`
}

type PaymentResponse struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	Provider      string `json:"provider"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
}

type PaymentStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type WebhookResponse struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Processed bool   `json:"processed"`
	Status    string `json:"status,omitempty"`
}

type ShippingMethodResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Carrier         string `json:"carrier"`
	BaseCost        int64  `json:"base_cost"`
	CostPerKg       int64  `json:"cost_per_kg"`
	Currency        string `json:"currency"`
	MinDeliveryDays int    `json:"min_delivery_days"`
	MaxDeliveryDays int    `json:"max_delivery_days"`
}

type CreateShipmentRequest struct {
	OrderID       string        `json:"order_id"`
	WeightKg      string        `json:"weight_kg"`
	DeclaredValue int64         `json:"declared_value,omitempty"`
	FromAddress   order.Address `json:"from_address"`
}

type ShipmentResponse struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	WeightKg       string `json:"weight_kg"`
	ShippingCost   int64  `json:"shipping_cost"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
}

type ShipmentEventRequest struct {
	EventType   string `json:"event_type"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	OccurredAt  string `json:"occurred_at,omitempty"`
}

type ShipmentEventResponse struct {
	EventType   string `json:"event_type"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Source      string `json:"source"`
	OccurredAt  string `json:"occurred_at"`
	RecordedAt  string `json:"recorded_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapCartToResponse(c cart.Cart) CartResponse {
	items := make([]CartItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = CartItemResponse{
			ArtworkID: it.ArtworkID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Amount,
			Currency:  it.UnitPrice.Currency,
		}
	}
	return CartResponse{
		ID:         c.ID,
		UserID:     c.UserID,
		Items:      items,
		TotalItems: c.TotalItems(),
		UpdatedAt:  c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func mapOrderToResponse(o order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ArtworkID: it.ArtworkID,
			Title:     it.Snapshot.Title,
			Artist:    it.Snapshot.Artist,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Amount,
			LineTotal: it.LineTotal(),
		}
	}
	resp := OrderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         string(o.Status),
		Currency:       o.Currency,
		Subtotal:       o.Subtotal,
		ShippingCost:   o.ShippingCost,
		TaxAmount:      o.TaxAmount,
		DiscountAmount: o.DiscountAmount,
		TotalAmount:    o.TotalAmount,
		Items:          items,
		CustomerNotes:  o.CustomerNotes,
		CreatedAt:      o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.ShippedAt != nil {
		resp.ShippedAt = o.ShippedAt.UTC().Format(time.RFC3339)
	}
	if o.DeliveredAt != nil {
		resp.DeliveredAt = o.DeliveredAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func mapHistoryToResponse(entries []order.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntryResponse{
			OldStatus: string(e.OldStatus),
			NewStatus: string(e.NewStatus),
			Actor:     e.Actor,
			Note:      e.Note,
			ChangedAt: e.ChangedAt.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func mapPaymentToResponse(p payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Provider:      p.Provider,
		Method:        p.Method,
		Amount:        p.Amount.Amount,
		Currency:      p.Amount.Currency,
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		FailureCode:   p.FailureCode,
	}
}

func mapMethodToResponse(m shipping.Method) ShippingMethodResponse {
	return ShippingMethodResponse{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		Carrier:         m.Carrier,
		BaseCost:        m.BaseCost.Amount,
		CostPerKg:       m.CostPerKg.Amount,
		Currency:        m.BaseCost.Currency,
		MinDeliveryDays: m.MinDeliveryDays,
		MaxDeliveryDays: m.MaxDeliveryDays,
	}
}

func mapShipmentToResponse(sh shipping.Shipment) ShipmentResponse {
	return ShipmentResponse{
		ID:             sh.ID,
		OrderID:        sh.OrderID,
		Carrier:        sh.Carrier,
		TrackingNumber: sh.TrackingNumber,
		WeightKg:       sh.WeightKg.String(),
		ShippingCost:   sh.ShippingCost.Amount,
		Currency:       sh.ShippingCost.Currency,
		Status:         string(sh.Status),
	}
}

func mapEventToResponse(ev shipping.Event) ShipmentEventResponse {
	return ShipmentEventResponse{
		EventType:   ev.EventType,
		Description: ev.Description,
		Location:    ev.Location,
		Source:      ev.Source,
		OccurredAt:  ev.OccurredAt.UTC().Format(time.RFC3339),
		RecordedAt:  ev.RecordedAt.UTC().Format(time.RFC3339),
	}
}
