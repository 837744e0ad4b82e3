// Package shipping owns shipping methods, weight-based cost calculation,
// shipments and their append-only carrier tracking log.
package shipping

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/order"
)

const domesticCountry = "TZ"

var (
	ErrMethodNotFound     = errors.New("shipping method not found")
	ErrMethodUnavailable  = errors.New("shipping method unavailable")
	ErrWeightExceedsLimit = errors.New("weight exceeds method limit")
	ErrShipmentNotFound   = errors.New("shipment not found")
	ErrShipmentExists     = errors.New("shipment already exists for order")
	ErrOrderNotShippable  = errors.New("order is not ready for shipment")
)

type Method struct {
	ID          string
	Name        string
	Description string
	Carrier     string

	BaseCost  money.Money
	CostPerKg money.Money

	MinDeliveryDays int
	MaxDeliveryDays int
	MaxWeightKg     decimal.Decimal // zero means unlimited

	DomesticOnly       bool
	SupportedCountries []string
	IsActive           bool
}

// Serves reports whether the method covers the destination country.
func (m Method) Serves(country string) bool {
	if country == domesticCountry {
		return true
	}
	if m.DomesticOnly {
		return false
	}
	for _, c := range m.SupportedCountries {
		if c == country {
			return true
		}
	}
	return false
}

// Cost computes base_cost + cost_per_kg × weight, rounded half-up to minor
// units. Weight above the method limit is an error, not a silent clamp.
func (m Method) Cost(weightKg decimal.Decimal) (money.Money, error) {
	if !m.MaxWeightKg.IsZero() && weightKg.GreaterThan(m.MaxWeightKg) {
		return money.Money{}, ErrWeightExceedsLimit
	}

	cost := m.BaseCost.Decimal().Add(m.CostPerKg.Decimal().Mul(weightKg))
	return money.FromDecimal(m.BaseCost.Currency, cost), nil
}

type ShipmentStatus string

const (
	ShipmentPending        ShipmentStatus = "pending"
	ShipmentLabeled        ShipmentStatus = "labeled"
	ShipmentPickedUp       ShipmentStatus = "picked_up"
	ShipmentInTransit      ShipmentStatus = "in_transit"
	ShipmentOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentDelivered      ShipmentStatus = "delivered"
	ShipmentReturned       ShipmentStatus = "returned"
	ShipmentLost           ShipmentStatus = "lost"
	ShipmentCancelled      ShipmentStatus = "cancelled"
)

type Shipment struct {
	ID             string
	OrderID        string
	MethodID       string
	Carrier        string
	TrackingNumber string

	WeightKg      decimal.Decimal
	DeclaredValue money.Money
	ShippingCost  money.Money

	FromAddress order.Address
	ToAddress   order.Address

	Status ShipmentStatus

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// Event is one carrier tracking update. OccurredAt is the carrier-reported
// time; RecordedAt is when we stored the row. The two legitimately differ
// when carriers report late.
type Event struct {
	ID          int64
	ShipmentID  string
	EventType   string
	Description string
	Location    string
	Source      string
	RawData     json.RawMessage
	OccurredAt  time.Time
	RecordedAt  time.Time
}

// statusForEvent maps carrier event types to shipment statuses. Unknown
// event types leave the shipment status alone but are still logged.
var statusForEvent = map[string]ShipmentStatus{
	"label_created":    ShipmentLabeled,
	"picked_up":        ShipmentPickedUp,
	"in_transit":       ShipmentInTransit,
	"out_for_delivery": ShipmentOutForDelivery,
	"delivered":        ShipmentDelivered,
	"returned":         ShipmentReturned,
	"lost":             ShipmentLost,
}

// orderMilestone maps a shipment status to the order transition it drives.
// Absent entries drive nothing.
var orderMilestone = map[ShipmentStatus]order.Status{
	ShipmentPickedUp:  order.StatusShipped,
	ShipmentInTransit: order.StatusShipped,
	ShipmentDelivered: order.StatusDelivered,
}
