package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safaricrafts/order-core/internal/cart"
	"github.com/safaricrafts/order-core/internal/money"
)

// CartStore implements cart.Repo. It is a named view over the shared Store
// because the cart port's Get(userID) would otherwise collide with the order
// port's Get(orderID) on the same receiver.
type CartStore struct {
	s *Store
}

func (s *Store) Carts() *CartStore {
	return &CartStore{s: s}
}

// Get returns the user's cart with its items.
func (c *CartStore) Get(ctx context.Context, userID string) (cart.Cart, error) {
	const q = `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?`

	var (
		ct                   cart.Cart
		createdAt, updatedAt string
	)
	err := c.s.db.QueryRowContext(ctx, q, userID).Scan(&ct.ID, &ct.UserID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cart.Cart{}, cart.ErrCartNotFound
	}
	if err != nil {
		return cart.Cart{}, fmt.Errorf("sqlite: get cart for user %q: %w", userID, err)
	}

	if ct.CreatedAt, err = parseTime(createdAt); err != nil {
		return cart.Cart{}, err
	}
	if ct.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return cart.Cart{}, err
	}

	items, err := c.items(ctx, ct.ID)
	if err != nil {
		return cart.Cart{}, err
	}
	ct.Items = items
	return ct, nil
}

func (c *CartStore) items(ctx context.Context, cartID string) ([]cart.Item, error) {
	const q = `
		SELECT artwork_id, quantity, unit_price, currency
		FROM   cart_items
		WHERE  cart_id = ?
		ORDER  BY created_at`

	rows, err := c.s.db.QueryContext(ctx, q, cartID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list cart items: %w", err)
	}
	defer rows.Close()

	var items []cart.Item
	for rows.Next() {
		var (
			it       cart.Item
			price    int64
			currency string
		)
		if err := rows.Scan(&it.ArtworkID, &it.Quantity, &price, &currency); err != nil {
			return nil, fmt.Errorf("sqlite: scan cart item: %w", err)
		}
		it.UnitPrice = money.New(currency, price)
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetOrCreate creates the cart lazily on first access. A concurrent creator
// loses the unique race on user_id and re-gets.
func (c *CartStore) GetOrCreate(ctx context.Context, userID string) (cart.Cart, error) {
	ct, err := c.Get(ctx, userID)
	if err == nil {
		return ct, nil
	}
	if !errors.Is(err, cart.ErrCartNotFound) {
		return cart.Cart{}, err
	}

	now := formatTime(time.Now())
	const q = `INSERT INTO carts (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`
	_, createErr := c.s.db.ExecContext(ctx, q, uuid.NewString(), userID, now, now)
	if createErr == nil || isUniqueViolation(createErr) {
		return c.Get(ctx, userID)
	}
	return cart.Cart{}, fmt.Errorf("sqlite: create cart: %w", createErr)
}

// AddItem upserts: at most one row per (cart, artwork), concurrent adds
// increment the same row.
func (c *CartStore) AddItem(ctx context.Context, cartID string, item cart.Item) error {
	now := formatTime(time.Now())
	const q = `
		INSERT INTO cart_items (cart_id, artwork_id, quantity, unit_price, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cart_id, artwork_id) DO UPDATE SET
			quantity   = quantity + excluded.quantity,
			unit_price = excluded.unit_price,
			currency   = excluded.currency,
			updated_at = excluded.updated_at`

	_, err := c.s.db.ExecContext(ctx, q,
		cartID, item.ArtworkID, item.Quantity, item.UnitPrice.Amount, item.UnitPrice.Currency, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: add cart item: %w", err)
	}
	return c.touch(ctx, cartID)
}

func (c *CartStore) SetItemQuantity(ctx context.Context, cartID string, item cart.Item) error {
	const q = `
		UPDATE cart_items SET quantity = ?, updated_at = ?
		WHERE  cart_id = ? AND artwork_id = ?`

	_, err := c.s.db.ExecContext(ctx, q, item.Quantity, formatTime(time.Now()), cartID, item.ArtworkID)
	if err != nil {
		return fmt.Errorf("sqlite: set cart item quantity: %w", err)
	}
	return c.touch(ctx, cartID)
}

func (c *CartStore) RemoveItem(ctx context.Context, cartID, artworkID string) error {
	const q = `DELETE FROM cart_items WHERE cart_id = ? AND artwork_id = ?`
	if _, err := c.s.db.ExecContext(ctx, q, cartID, artworkID); err != nil {
		return fmt.Errorf("sqlite: remove cart item: %w", err)
	}
	return c.touch(ctx, cartID)
}

// Clear removes the items but keeps the cart row. Carts are cleared, not
// deleted.
func (c *CartStore) Clear(ctx context.Context, cartID string) error {
	if _, err := c.s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("sqlite: clear cart: %w", err)
	}
	return c.touch(ctx, cartID)
}

func (c *CartStore) touch(ctx context.Context, cartID string) error {
	_, err := c.s.db.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, formatTime(time.Now()), cartID)
	if err != nil {
		return fmt.Errorf("sqlite: touch cart: %w", err)
	}
	return nil
}
