package shipping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/order"
)

// Repo is the persistence port.
type Repo interface {
	Method(ctx context.Context, id string) (Method, error)
	ActiveMethods(ctx context.Context) ([]Method, error)
	CreateShipment(ctx context.Context, s Shipment) (Shipment, error)
	ShipmentByTracking(ctx context.Context, trackingNumber string) (Shipment, error)
	ShipmentByOrderID(ctx context.Context, orderID string) (Shipment, error)
	// AppendEvent writes the event row and the shipment status/stamp update
	// in one transaction.
	AppendEvent(ctx context.Context, shipmentID string, ev Event, next ShipmentStatus) (Event, error)
	Events(ctx context.Context, shipmentID string) ([]Event, error)
}

// OrderDriver is the slice of the order state machine shipping is allowed to
// drive: forward milestones only.
type OrderDriver interface {
	Get(ctx context.Context, id string) (order.Order, error)
	Transition(ctx context.Context, orderID string, next order.Status, actor, note string) (order.Order, error)
}

type Service struct {
	repo   Repo
	orders OrderDriver
}

func NewService(repo Repo, orders OrderDriver) *Service {
	return &Service{repo: repo, orders: orders}
}

func (s *Service) ActiveMethods(ctx context.Context) ([]Method, error) {
	return s.repo.ActiveMethods(ctx)
}

// ActiveMethod resolves a method and checks it is usable for the
// destination. Inactive methods and unserved destinations are both
// ErrMethodUnavailable, matching what checkout needs to reject.
func (s *Service) ActiveMethod(ctx context.Context, id, destinationCountry string) (Method, error) {
	m, err := s.repo.Method(ctx, id)
	if err != nil {
		return Method{}, err
	}
	if !m.IsActive {
		return Method{}, fmt.Errorf("%w: method %s is inactive", ErrMethodUnavailable, id)
	}
	if !m.Serves(destinationCountry) {
		return Method{}, fmt.Errorf("%w: method %s does not serve %s", ErrMethodUnavailable, id, destinationCountry)
	}
	return m, nil
}

// CalculateCost quotes shipping for a weight using the method's rate.
func (s *Service) CalculateCost(ctx context.Context, methodID, destinationCountry string, weightKg decimal.Decimal) (money.Money, error) {
	m, err := s.ActiveMethod(ctx, methodID, destinationCountry)
	if err != nil {
		return money.Money{}, err
	}
	return m.Cost(weightKg)
}

type CreateShipmentRequest struct {
	OrderID       string
	WeightKg      decimal.Decimal
	DeclaredValue int64
	FromAddress   order.Address
}

// CreateShipment creates the shipment for a paid order and moves the order
// to processing. Addresses are snapshotted from the order, never re-read
// from the user's address book.
func (s *Service) CreateShipment(ctx context.Context, req CreateShipmentRequest) (Shipment, error) {
	o, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return Shipment{}, err
	}

	if o.Status != order.StatusConfirmed && o.Status != order.StatusProcessing {
		return Shipment{}, fmt.Errorf("%w: order is %s", ErrOrderNotShippable, o.Status)
	}

	if _, err := s.repo.ShipmentByOrderID(ctx, req.OrderID); err == nil {
		return Shipment{}, ErrShipmentExists
	} else if !errors.Is(err, ErrShipmentNotFound) {
		return Shipment{}, err
	}

	m, err := s.ActiveMethod(ctx, o.ShippingMethodID, o.ShippingAddress.Country)
	if err != nil {
		return Shipment{}, err
	}

	cost, err := m.Cost(req.WeightKg)
	if err != nil {
		return Shipment{}, err
	}

	sh, err := s.repo.CreateShipment(ctx, Shipment{
		OrderID:        req.OrderID,
		MethodID:       m.ID,
		Carrier:        m.Carrier,
		TrackingNumber: newTrackingNumber(m.Carrier),
		WeightKg:       req.WeightKg,
		DeclaredValue:  money.New(o.Currency, req.DeclaredValue),
		ShippingCost:   cost,
		FromAddress:    req.FromAddress,
		ToAddress:      o.ShippingAddress,
		Status:         ShipmentPending,
	})
	if err != nil {
		return Shipment{}, err
	}

	if o.Status == order.StatusConfirmed {
		if _, err := s.orders.Transition(ctx, o.ID, order.StatusProcessing, "system", "Shipment created"); err != nil {
			return sh, fmt.Errorf("shipment created but order transition failed: %w", err)
		}
	}

	slog.InfoContext(ctx, "shipment created",
		"shipment_id", sh.ID, "order_id", req.OrderID, "tracking_number", sh.TrackingNumber)

	return sh, nil
}

func (s *Service) ShipmentByTracking(ctx context.Context, trackingNumber string) (Shipment, error) {
	return s.repo.ShipmentByTracking(ctx, trackingNumber)
}

func (s *Service) Events(ctx context.Context, shipmentID string) ([]Event, error) {
	return s.repo.Events(ctx, shipmentID)
}

type TrackingUpdate struct {
	EventType   string
	Description string
	Location    string
	Source      string
	OccurredAt  time.Time
	RawData     []byte
}

// IngestEvent appends a carrier tracking update and drives the order forward
// on milestones. Events for milestones the order has already passed are
// still recorded; the order transition is simply skipped.
func (s *Service) IngestEvent(ctx context.Context, trackingNumber string, upd TrackingUpdate) (Event, error) {
	sh, err := s.repo.ShipmentByTracking(ctx, trackingNumber)
	if err != nil {
		return Event{}, err
	}

	source := upd.Source
	if source == "" {
		source = "carrier"
	}
	occurred := upd.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	next, known := statusForEvent[strings.ToLower(upd.EventType)]
	if !known {
		next = sh.Status
	}

	ev, err := s.repo.AppendEvent(ctx, sh.ID, Event{
		EventType:   upd.EventType,
		Description: upd.Description,
		Location:    upd.Location,
		Source:      source,
		RawData:     upd.RawData,
		OccurredAt:  occurred,
	}, next)
	if err != nil {
		return Event{}, err
	}

	if milestone, ok := orderMilestone[next]; ok {
		o, err := s.orders.Get(ctx, sh.OrderID)
		if err != nil {
			return ev, err
		}
		note := fmt.Sprintf("Carrier event: %s", upd.EventType)
		// Walk every milestone up to the reported one. Carriers drop or
		// reorder updates, so a delivered event on an order still in
		// processing takes the shipped edge first instead of stranding the
		// order.
		for _, step := range []order.Status{order.StatusShipped, order.StatusDelivered} {
			if order.CanTransition(o.Status, step) {
				if o, err = s.orders.Transition(ctx, sh.OrderID, step, "carrier", note); err != nil {
					return ev, fmt.Errorf("event recorded but order transition failed: %w", err)
				}
			}
			if step == milestone {
				break
			}
		}
	}

	slog.InfoContext(ctx, "shipment event ingested",
		"tracking_number", trackingNumber, "event_type", upd.EventType, "shipment_status", next)

	return ev, nil
}

// Complete closes out a delivered order.
func (s *Service) Complete(ctx context.Context, orderID, actor string) (order.Order, error) {
	return s.orders.Transition(ctx, orderID, order.StatusCompleted, actor, "Order completed")
}

func newTrackingNumber(carrier string) string {
	prefix := "SF"
	if len(carrier) >= 2 {
		prefix = strings.ToUpper(carrier[:2])
	}
	return prefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
}
