package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safaricrafts/order-core/internal/catalog"
	"github.com/safaricrafts/order-core/internal/money"
)

// Artwork implements catalog.ArtworkReader.
func (s *Store) Artwork(ctx context.Context, id string) (catalog.Artwork, error) {
	const q = `
		SELECT id, title, artist_name, price, currency, status, stock_quantity
		FROM   artworks
		WHERE  id = ?`

	var (
		aw       catalog.Artwork
		price    int64
		currency string
		status   string
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&aw.ID, &aw.Title, &aw.ArtistName, &price, &currency, &status, &aw.StockQuantity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Artwork{}, catalog.ErrArtworkNotFound
	}
	if err != nil {
		return catalog.Artwork{}, fmt.Errorf("sqlite: get artwork %q: %w", id, err)
	}

	aw.Price = money.New(currency, price)
	aw.Status = catalog.ArtworkStatus(status)
	return aw, nil
}

// CreateArtwork seeds a catalog row. Used by fixtures and the demo seeder;
// full catalog management lives outside this service.
func (s *Store) CreateArtwork(ctx context.Context, aw catalog.Artwork) (catalog.Artwork, error) {
	if aw.ID == "" {
		aw.ID = uuid.NewString()
	}
	if aw.Status == "" {
		aw.Status = catalog.StatusActive
	}
	now := formatTime(time.Now())

	const q = `
		INSERT INTO artworks (id, title, artist_name, price, currency, status, stock_quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		aw.ID, aw.Title, aw.ArtistName, aw.Price.Amount, aw.Price.Currency,
		string(aw.Status), aw.StockQuantity, now, now,
	)
	if err != nil {
		return catalog.Artwork{}, fmt.Errorf("sqlite: create artwork: %w", err)
	}
	return aw, nil
}

// SetArtworkStatus flips availability; used when a piece is sold out or
// withdrawn.
func (s *Store) SetArtworkStatus(ctx context.Context, id string, status catalog.ArtworkStatus) error {
	const q = `UPDATE artworks SET status = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: set artwork status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrArtworkNotFound
	}
	return nil
}
