// Package catalog exposes the minimal slice of the artwork catalog that the
// order core consumes: point-in-time price and availability reads. Browsing,
// search and curation live elsewhere.
package catalog

import (
	"context"
	"errors"

	"github.com/safaricrafts/order-core/internal/money"
)

type ArtworkStatus string

const (
	StatusDraft    ArtworkStatus = "draft"
	StatusActive   ArtworkStatus = "active"
	StatusSold     ArtworkStatus = "sold"
	StatusInactive ArtworkStatus = "inactive"
)

var (
	ErrArtworkNotFound = errors.New("artwork not found")
	// ErrArtworkUnavailable covers sold, deactivated and out-of-stock pieces.
	ErrArtworkUnavailable = errors.New("artwork unavailable")
)

type Artwork struct {
	ID            string
	Title         string
	ArtistName    string
	Price         money.Money
	Status        ArtworkStatus
	StockQuantity int32
}

// Available reports whether the artwork can be purchased right now.
func (a Artwork) Available() bool {
	return a.Status == StatusActive && a.StockQuantity > 0
}

// ArtworkReader is the port the cart and checkout services read through.
// Reads are point-in-time: no lock is held across the call.
type ArtworkReader interface {
	Artwork(ctx context.Context, id string) (Artwork, error)
}
