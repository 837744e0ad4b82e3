package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/safaricrafts/order-core/internal/catalog"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Repo is the persistence port. AddItem upserts: at most one row exists per
// (cart, artwork) pair and concurrent adds increment the same row.
type Repo interface {
	Get(ctx context.Context, userID string) (Cart, error)
	GetOrCreate(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cartID string, item Item) error
	SetItemQuantity(ctx context.Context, cartID string, item Item) error
	RemoveItem(ctx context.Context, cartID, artworkID string) error
	Clear(ctx context.Context, cartID string) error
}

type Service struct {
	repo    Repo
	catalog catalog.ArtworkReader
}

func NewService(repo Repo, reader catalog.ArtworkReader) *Service {
	return &Service{repo: repo, catalog: reader}
}

func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

// AddItem snapshots the current catalog price onto the cart line. The
// snapshot is informational; checkout prices from the live catalog.
func (s *Service) AddItem(ctx context.Context, userID, artworkID string, qty int32) (Cart, error) {
	if qty < 1 {
		return Cart{}, ErrInvalidQuantity
	}

	aw, err := s.catalog.Artwork(ctx, artworkID)
	if err != nil {
		return Cart{}, fmt.Errorf("add item: %w", err)
	}
	if !aw.Available() {
		return Cart{}, fmt.Errorf("add item %s: %w", artworkID, catalog.ErrArtworkUnavailable)
	}

	c, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	if err := s.repo.AddItem(ctx, c.ID, Item{
		ArtworkID: artworkID,
		Quantity:  qty,
		UnitPrice: aw.Price,
	}); err != nil {
		return Cart{}, err
	}

	return s.repo.Get(ctx, userID)
}

func (s *Service) SetItemQuantity(ctx context.Context, userID, artworkID string, qty int32) (Cart, error) {
	if qty < 1 {
		return Cart{}, ErrInvalidQuantity
	}

	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	if err := s.repo.SetItemQuantity(ctx, c.ID, Item{ArtworkID: artworkID, Quantity: qty}); err != nil {
		return Cart{}, err
	}

	return s.repo.Get(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, artworkID string) (Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	if err := s.repo.RemoveItem(ctx, c.ID, artworkID); err != nil {
		return Cart{}, err
	}

	return s.repo.Get(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.Clear(ctx, c.ID)
}
