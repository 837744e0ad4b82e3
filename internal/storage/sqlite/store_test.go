package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safaricrafts/order-core/internal/catalog"
	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/storage/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func buildOrder(items ...order.Item) order.Order {
	var subtotal int64
	for _, it := range items {
		subtotal += it.LineTotal()
	}
	return order.Order{
		UserID:   "user-1",
		Status:   order.StatusPending,
		Currency: "TZS",
		Subtotal: subtotal,
		ShippingAddress: order.Address{
			FullName: "Asha Juma", Line1: "14 Mbezi Beach Rd", City: "Dar es Salaam", Country: "TZ",
		},
		BillingAddress: order.Address{
			FullName: "Asha Juma", Line1: "14 Mbezi Beach Rd", City: "Dar es Salaam", Country: "TZ",
		},
		ShippingMethodID: "method-1",
		TotalAmount:      subtotal,
		Items:            items,
	}
}

// A failure partway through the conversion must leave no trace: no order, no
// items, no history, stock of earlier lines restored.
func TestCreateOrderFromCartRollsBackOnStockFailure(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, err := store.CreateArtwork(ctx, catalog.Artwork{
		Title: "Makonde Carving", ArtistName: "J. Lihundi",
		Price: money.New("TZS", 90000), StockQuantity: 5,
	})
	require.NoError(t, err)
	second, err := store.CreateArtwork(ctx, catalog.Artwork{
		Title: "Ebony Mask", ArtistName: "J. Lihundi",
		Price: money.New("TZS", 150000), StockQuantity: 1,
	})
	require.NoError(t, err)

	o := buildOrder(
		order.Item{ArtworkID: first.ID, Quantity: 2, UnitPrice: first.Price,
			Snapshot: order.ArtworkSnapshot{Title: first.Title, Currency: "TZS", Price: 90000}},
		order.Item{ArtworkID: second.ID, Quantity: 3, UnitPrice: second.Price,
			Snapshot: order.ArtworkSnapshot{Title: second.Title, Currency: "TZS", Price: 150000}},
	)

	_, err = store.CreateOrderFromCart(ctx, o, "cart-1")
	require.ErrorIs(t, err, catalog.ErrArtworkUnavailable)

	// first line's decrement rolled back
	got, err := store.Artwork(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(5), got.StockQuantity)
}

func TestCreateOrderFromCartMarksSoldOut(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	aw, err := store.CreateArtwork(ctx, catalog.Artwork{
		Title: "One of a Kind", ArtistName: "A. Mollel",
		Price: money.New("TZS", 200000), StockQuantity: 1,
	})
	require.NoError(t, err)

	o := buildOrder(order.Item{
		ArtworkID: aw.ID, Quantity: 1, UnitPrice: aw.Price,
		Snapshot: order.ArtworkSnapshot{Title: aw.Title, Currency: "TZS", Price: 200000},
	})

	created, err := store.CreateOrderFromCart(ctx, o, "cart-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.OrderNumber)

	got, err := store.Artwork(ctx, aw.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), got.StockQuantity)
	assert.Equal(t, catalog.StatusSold, got.Status)
	assert.False(t, got.Available())
}

func TestUpdateStatusConflict(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	aw, err := store.CreateArtwork(ctx, catalog.Artwork{
		Title: "Basket", ArtistName: "W. Shirima",
		Price: money.New("TZS", 15000), StockQuantity: 2,
	})
	require.NoError(t, err)

	created, err := store.CreateOrderFromCart(ctx, buildOrder(order.Item{
		ArtworkID: aw.ID, Quantity: 1, UnitPrice: aw.Price,
		Snapshot: order.ArtworkSnapshot{Title: aw.Title, Currency: "TZS", Price: 15000},
	}), "cart-1")
	require.NoError(t, err)

	err = store.UpdateStatus(ctx, created.ID, order.StatusConfirmed, order.StatusProcessing, "system", "")
	assert.ErrorIs(t, err, order.ErrStatusConflict)

	// the failed write left no history row behind
	history, err := store.History(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestGetRoundTripsAddressesAndTimes(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	aw, err := store.CreateArtwork(ctx, catalog.Artwork{
		Title: "Kanga Print", ArtistName: "F. Mushi",
		Price: money.New("TZS", 25000), StockQuantity: 3,
	})
	require.NoError(t, err)

	created, err := store.CreateOrderFromCart(ctx, buildOrder(order.Item{
		ArtworkID: aw.ID, Quantity: 2, UnitPrice: aw.Price,
		Snapshot: order.ArtworkSnapshot{Title: aw.Title, Artist: "F. Mushi", Currency: "TZS", Price: 25000},
	}), "cart-1")
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dar es Salaam", got.ShippingAddress.City)
	assert.Equal(t, "TZ", got.ShippingAddress.Country)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Nil(t, got.ShippedAt)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "F. Mushi", got.Items[0].Snapshot.Artist)
	assert.Equal(t, int64(50000), got.Items[0].LineTotal())
}
