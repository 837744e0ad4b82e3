// Package checkout converts a mutable cart into an immutable order. The
// conversion is all-or-nothing: one transaction writes the order, its items,
// the opening history row and the year-scoped order number, then clears the
// cart. A failure anywhere leaves both stores untouched.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/safaricrafts/order-core/internal/cart"
	"github.com/safaricrafts/order-core/internal/catalog"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/shipping"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrShippingMethodUnavailable wraps shipping.ErrMethodUnavailable for
	// callers that only import this package.
	ErrShippingMethodUnavailable = shipping.ErrMethodUnavailable
	ErrArtworkUnavailable        = catalog.ErrArtworkUnavailable
)

// Carts is the slice of the cart context checkout reads.
type Carts interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
}

// Quotes resolves shipping methods and costs.
type Quotes interface {
	ActiveMethod(ctx context.Context, id, destinationCountry string) (shipping.Method, error)
}

// Repo persists the conversion. CreateOrderFromCart runs the single atomic
// transaction: assign the next order number for the year, insert the order,
// its items and the opening history row, re-check availability and decrement
// artwork stock, and clear the cart. Any failure rolls the whole thing back.
type Repo interface {
	CreateOrderFromCart(ctx context.Context, o order.Order, cartID string) (order.Order, error)
}

type ConvertRequest struct {
	UserID           string
	ShippingAddress  order.Address
	BillingAddress   order.Address
	SameAsShipping   bool
	ShippingMethodID string
	CustomerNotes    string
	// PackageWeightKg defaults to 2.5 when zero, the marketplace's standard
	// parcel assumption.
	PackageWeightKg decimal.Decimal
}

type Service struct {
	carts    Carts
	catalog  catalog.ArtworkReader
	shipping Quotes
	repo     Repo

	maxConcurrent int
}

func NewService(carts Carts, reader catalog.ArtworkReader, quotes Quotes, repo Repo) *Service {
	return &Service{
		carts:         carts,
		catalog:       reader,
		shipping:      quotes,
		repo:          repo,
		maxConcurrent: 10,
	}
}

var defaultWeight = decimal.RequireFromString("2.5")

// Convert performs the checkout. Pricing is computed once, from live catalog
// prices at conversion time, and frozen into the order and its snapshots.
func (s *Service) Convert(ctx context.Context, req ConvertRequest) (order.Order, error) {
	c, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		return order.Order{}, err
	}
	if c.IsEmpty() {
		return order.Order{}, ErrEmptyCart
	}

	billing := req.BillingAddress
	if req.SameAsShipping {
		billing = req.ShippingAddress
	}

	method, err := s.shipping.ActiveMethod(ctx, req.ShippingMethodID, req.ShippingAddress.Country)
	if err != nil {
		return order.Order{}, err
	}

	weight := req.PackageWeightKg
	if weight.IsZero() {
		weight = defaultWeight
	}
	shippingCost, err := method.Cost(weight)
	if err != nil {
		return order.Order{}, err
	}

	items, currency, err := s.priceItems(ctx, c.Items)
	if err != nil {
		return order.Order{}, err
	}

	var subtotal int64
	for _, it := range items {
		subtotal += it.LineTotal()
	}

	// No tax or promotions yet; the invariant still carries the terms.
	var taxAmount, discountAmount int64

	o := order.Order{
		UserID:           req.UserID,
		Status:           order.StatusPending,
		Currency:         currency,
		Subtotal:         subtotal,
		ShippingCost:     shippingCost.Amount,
		TaxAmount:        taxAmount,
		DiscountAmount:   discountAmount,
		TotalAmount:      subtotal + shippingCost.Amount + taxAmount - discountAmount,
		ShippingAddress:  req.ShippingAddress,
		BillingAddress:   billing,
		ShippingMethodID: method.ID,
		CustomerNotes:    req.CustomerNotes,
		Items:            items,
	}

	created, err := s.repo.CreateOrderFromCart(ctx, o, c.ID)
	if err != nil {
		return order.Order{}, err
	}

	slog.InfoContext(ctx, "cart converted to order",
		"order_id", created.ID, "order_number", created.OrderNumber,
		"user_id", req.UserID, "total", created.TotalAmount, "currency", created.Currency)

	return created, nil
}

// priceItems reads live prices concurrently and builds the frozen order
// items. Any unavailable artwork fails the whole conversion.
func (s *Service) priceItems(ctx context.Context, items []cart.Item) ([]order.Item, string, error) {
	out := make([]order.Item, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for idx := range items {
		g.Go(func() error {
			it := items[idx]
			if it.Quantity < 1 {
				return fmt.Errorf("artwork %s: quantity must be at least 1", it.ArtworkID)
			}

			aw, err := s.catalog.Artwork(ctx, it.ArtworkID)
			if err != nil {
				return fmt.Errorf("artwork %s: %w", it.ArtworkID, err)
			}
			if !aw.Available() || aw.StockQuantity < it.Quantity {
				return fmt.Errorf("artwork %s: %w", it.ArtworkID, ErrArtworkUnavailable)
			}

			out[idx] = order.Item{
				ArtworkID: it.ArtworkID,
				Quantity:  it.Quantity,
				UnitPrice: aw.Price,
				Snapshot: order.ArtworkSnapshot{
					Title:    aw.Title,
					Artist:   aw.ArtistName,
					Price:    aw.Price.Amount,
					Currency: aw.Price.Currency,
				},
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	currency := out[0].UnitPrice.Currency
	for _, it := range out {
		if it.UnitPrice.Currency != currency {
			return nil, "", fmt.Errorf("mixed currencies in cart: %s and %s", currency, it.UnitPrice.Currency)
		}
	}

	return out, currency, nil
}
