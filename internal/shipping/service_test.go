package shipping_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safaricrafts/order-core/internal/catalog"
	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/pkg/locks"
	"github.com/safaricrafts/order-core/internal/shipping"
	"github.com/safaricrafts/order-core/internal/storage/sqlite"
)

type fixture struct {
	store  *sqlite.Store
	sm     *order.StateMachine
	svc    *shipping.Service
	method shipping.Method
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	method, err := store.CreateShippingMethod(context.Background(), shipping.Method{
		Name:         "Standard",
		Carrier:      "Posta",
		BaseCost:     money.New("TZS", 5000),
		CostPerKg:    money.New("TZS", 1200),
		DomesticOnly: true,
		IsActive:     true,
	})
	require.NoError(t, err)

	sm := order.NewStateMachine(store, locks.NewKeyed())
	return &fixture{
		store:  store,
		sm:     sm,
		svc:    shipping.NewService(store, sm),
		method: method,
	}
}

// confirmedOrder creates an order and walks it to confirmed, the state a
// paid order sits in when fulfilment picks it up.
func (f *fixture) confirmedOrder(t *testing.T) order.Order {
	t.Helper()
	ctx := context.Background()

	aw, err := f.store.CreateArtwork(ctx, catalog.Artwork{
		Title: "Tingatinga Lion", ArtistName: "E. Saidi",
		Price: money.New("TZS", 120000), StockQuantity: 5,
	})
	require.NoError(t, err)

	o, err := f.store.CreateOrderFromCart(ctx, order.Order{
		UserID:   "user-1",
		Status:   order.StatusPending,
		Currency: "TZS",
		Subtotal: 120000, TotalAmount: 120000,
		ShippingAddress:  order.Address{FullName: "Asha Juma", Line1: "14 Mbezi Beach Rd", City: "Dar es Salaam", Country: "TZ"},
		BillingAddress:   order.Address{FullName: "Asha Juma", Line1: "14 Mbezi Beach Rd", City: "Dar es Salaam", Country: "TZ"},
		ShippingMethodID: f.method.ID,
		Items: []order.Item{{
			ArtworkID: aw.ID, Quantity: 1, UnitPrice: aw.Price,
			Snapshot: order.ArtworkSnapshot{Title: aw.Title, Currency: "TZS", Price: 120000},
		}},
	}, "cart-1")
	require.NoError(t, err)

	got, err := f.sm.Transition(ctx, o.ID, order.StatusConfirmed, "system", "Payment completed")
	require.NoError(t, err)
	return got
}

func (f *fixture) createShipment(t *testing.T, orderID string) shipping.Shipment {
	t.Helper()
	sh, err := f.svc.CreateShipment(context.Background(), shipping.CreateShipmentRequest{
		OrderID:     orderID,
		WeightKg:    decimal.RequireFromString("2.5"),
		FromAddress: order.Address{FullName: "SafariCrafts Warehouse", Line1: "Nyerere Rd", City: "Dar es Salaam", Country: "TZ"},
	})
	require.NoError(t, err)
	return sh
}

func TestCreateShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.confirmedOrder(t)

	sh := f.createShipment(t, o.ID)
	assert.Equal(t, shipping.ShipmentPending, sh.Status)
	assert.Equal(t, "Posta", sh.Carrier)
	assert.Equal(t, "PO", sh.TrackingNumber[:2])
	assert.Len(t, sh.TrackingNumber, 14)
	// 5000 + 1200 * 2.5
	assert.Equal(t, int64(8000), sh.ShippingCost.Amount)
	assert.Equal(t, "Dar es Salaam", sh.ToAddress.City)

	// booking the shipment moved the order to processing
	got, err := f.sm.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
}

func TestCreateShipmentDuplicate(t *testing.T) {
	f := newFixture(t)
	o := f.confirmedOrder(t)
	f.createShipment(t, o.ID)

	_, err := f.svc.CreateShipment(context.Background(), shipping.CreateShipmentRequest{
		OrderID:  o.ID,
		WeightKg: decimal.RequireFromString("2.5"),
	})
	assert.ErrorIs(t, err, shipping.ErrShipmentExists)
}

func TestCreateShipmentOrderNotReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.confirmedOrder(t)

	_, err := f.sm.Cancel(ctx, o.ID, "user-1", "")
	require.NoError(t, err)

	_, err = f.svc.CreateShipment(ctx, shipping.CreateShipmentRequest{
		OrderID:  o.ID,
		WeightKg: decimal.RequireFromString("2.5"),
	})
	assert.ErrorIs(t, err, shipping.ErrOrderNotShippable)
}

func TestIngestEventDrivesOrderMilestones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.confirmedOrder(t)
	sh := f.createShipment(t, o.ID)

	_, err := f.svc.IngestEvent(ctx, sh.TrackingNumber, shipping.TrackingUpdate{
		EventType: "picked_up", Location: "Dar es Salaam Hub",
	})
	require.NoError(t, err)

	got, err := f.sm.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, got.Status)
	assert.NotNil(t, got.ShippedAt)

	updated, err := f.svc.ShipmentByTracking(ctx, sh.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, shipping.ShipmentPickedUp, updated.Status)
	assert.NotNil(t, updated.ShippedAt)

	// in_transit maps to the same order milestone; already shipped, so the
	// order is untouched while the shipment still advances
	_, err = f.svc.IngestEvent(ctx, sh.TrackingNumber, shipping.TrackingUpdate{EventType: "in_transit"})
	require.NoError(t, err)

	_, err = f.svc.IngestEvent(ctx, sh.TrackingNumber, shipping.TrackingUpdate{EventType: "delivered"})
	require.NoError(t, err)

	got, err = f.sm.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)
}

// Carriers drop updates: a delivered event with no preceding picked_up must
// still walk the order through shipped to delivered.
func TestIngestEventDeliveredWithoutPickup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.confirmedOrder(t)
	sh := f.createShipment(t, o.ID)

	_, err := f.svc.IngestEvent(ctx, sh.TrackingNumber, shipping.TrackingUpdate{EventType: "delivered"})
	require.NoError(t, err)

	got, err := f.sm.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)
	assert.NotNil(t, got.ShippedAt)
	assert.NotNil(t, got.DeliveredAt)

	// the audit trail shows the intermediate shipped edge
	history, err := f.sm.History(ctx, o.ID)
	require.NoError(t, err)
	statuses := make([]order.Status, 0, len(history))
	for _, h := range history {
		statuses = append(statuses, h.NewStatus)
	}
	assert.Contains(t, statuses, order.StatusShipped)
	assert.Contains(t, statuses, order.StatusDelivered)
}

func TestIngestEventUnknownType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.confirmedOrder(t)
	sh := f.createShipment(t, o.ID)

	ev, err := f.svc.IngestEvent(ctx, sh.TrackingNumber, shipping.TrackingUpdate{
		EventType: "customs_hold", Description: "held at customs",
	})
	require.NoError(t, err)
	assert.Equal(t, "carrier", ev.Source)

	// logged but the shipment status is unchanged
	updated, err := f.svc.ShipmentByTracking(ctx, sh.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, shipping.ShipmentPending, updated.Status)

	events, err := f.svc.Events(ctx, sh.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "customs_hold", events[0].EventType)
}

func TestIngestEventUnknownTracking(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IngestEvent(context.Background(), "XX000000000000", shipping.TrackingUpdate{EventType: "picked_up"})
	assert.ErrorIs(t, err, shipping.ErrShipmentNotFound)
}

func TestEventsKeepCarrierClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.confirmedOrder(t)
	sh := f.createShipment(t, o.ID)

	carrierTime := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	_, err := f.svc.IngestEvent(ctx, sh.TrackingNumber, shipping.TrackingUpdate{
		EventType: "label_created", OccurredAt: carrierTime,
	})
	require.NoError(t, err)

	events, err := f.svc.Events(ctx, sh.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].OccurredAt.Equal(carrierTime))
	assert.True(t, events[0].RecordedAt.After(carrierTime))
}

func TestCompleteDeliveredOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.confirmedOrder(t)
	sh := f.createShipment(t, o.ID)

	_, err := f.svc.IngestEvent(ctx, sh.TrackingNumber, shipping.TrackingUpdate{EventType: "picked_up"})
	require.NoError(t, err)
	_, err = f.svc.IngestEvent(ctx, sh.TrackingNumber, shipping.TrackingUpdate{EventType: "delivered"})
	require.NoError(t, err)

	got, err := f.svc.Complete(ctx, o.ID, "system")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)

	// completed is terminal
	_, err = f.svc.Complete(ctx, o.ID, "system")
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}
