package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safaricrafts/order-core/internal/catalog"
	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/payment"
)

const orderColumns = `
	id, order_number, user_id, status, currency,
	subtotal, shipping_cost, tax_amount, discount_amount, total_amount,
	shipping_address, billing_address, shipping_method_id, customer_notes,
	created_at, updated_at, shipped_at, delivered_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (order.Order, error) {
	var (
		o                    order.Order
		status               string
		shippingJSON         string
		billingJSON          string
		createdAt, updatedAt string
		shippedAt            sql.NullString
		deliveredAt          sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &status, &o.Currency,
		&o.Subtotal, &o.ShippingCost, &o.TaxAmount, &o.DiscountAmount, &o.TotalAmount,
		&shippingJSON, &billingJSON, &o.ShippingMethodID, &o.CustomerNotes,
		&createdAt, &updatedAt, &shippedAt, &deliveredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, order.ErrOrderNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("sqlite: scan order: %w", err)
	}

	o.Status = order.Status(status)
	if err := json.Unmarshal([]byte(shippingJSON), &o.ShippingAddress); err != nil {
		return order.Order{}, fmt.Errorf("sqlite: decode shipping address: %w", err)
	}
	if err := json.Unmarshal([]byte(billingJSON), &o.BillingAddress); err != nil {
		return order.Order{}, fmt.Errorf("sqlite: decode billing address: %w", err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return order.Order{}, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return order.Order{}, err
	}
	if o.ShippedAt, err = parseNullTime(shippedAt); err != nil {
		return order.Order{}, err
	}
	if o.DeliveredAt, err = parseNullTime(deliveredAt); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// Get implements order.Repo. Items are always loaded with the order; every
// caller needs them and the item count per order is small.
func (s *Store) Get(ctx context.Context, id string) (order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	o, err := scanOrder(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return order.Order{}, err
	}

	items, err := s.orderItems(ctx, o.ID)
	if err != nil {
		return order.Order{}, err
	}
	o.Items = items
	return o, nil
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]order.Item, error) {
	const q = `
		SELECT id, order_id, artwork_id, quantity, unit_price, tax_rate, snapshot, created_at
		FROM   order_items
		WHERE  order_id = ?
		ORDER  BY created_at, id`

	rows, err := s.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list order items: %w", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var (
			it           order.Item
			price        int64
			snapshotJSON string
			createdAt    string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ArtworkID, &it.Quantity, &price, &it.TaxRate, &snapshotJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan order item: %w", err)
		}
		if err := json.Unmarshal([]byte(snapshotJSON), &it.Snapshot); err != nil {
			return nil, fmt.Errorf("sqlite: decode artwork snapshot: %w", err)
		}
		it.UnitPrice = money.New(it.Snapshot.Currency, price)
		if it.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// History returns the audit trail oldest first.
func (s *Store) History(ctx context.Context, orderID string) ([]order.HistoryEntry, error) {
	const q = `
		SELECT id, order_id, old_status, new_status, actor, note, changed_at
		FROM   order_status_history
		WHERE  order_id = ?
		ORDER  BY id`

	rows, err := s.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list order history: %w", err)
	}
	defer rows.Close()

	var entries []order.HistoryEntry
	for rows.Next() {
		var (
			e         order.HistoryEntry
			oldStatus string
			newStatus string
			changedAt string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &oldStatus, &newStatus, &e.Actor, &e.Note, &changedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan history entry: %w", err)
		}
		e.OldStatus = order.Status(oldStatus)
		e.NewStatus = order.Status(newStatus)
		if e.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateStatus implements order.Repo: the status write and its history row
// land in one transaction, with the expected status re-checked inside it.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expect, next order.Status, actor, note string) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		return updateOrderStatusTx(ctx, tx, orderID, expect, next, actor, note)
	})
}

func updateOrderStatusTx(ctx context.Context, tx *sql.Tx, orderID string, expect, next order.Status, actor, note string) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, orderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return order.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: read order status: %w", err)
	}
	if order.Status(current) != expect {
		return fmt.Errorf("%w: expected %s, found %s", order.ErrStatusConflict, expect, current)
	}

	now := formatTime(time.Now())

	set := `status = ?, updated_at = ?`
	switch next {
	case order.StatusShipped:
		set += `, shipped_at = COALESCE(shipped_at, ?)`
	case order.StatusDelivered:
		set += `, delivered_at = COALESCE(delivered_at, ?)`
	}

	args := []any{string(next), now}
	if next == order.StatusShipped || next == order.StatusDelivered {
		args = append(args, now)
	}
	args = append(args, orderID)

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET `+set+` WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("sqlite: update order status: %w", err)
	}

	return insertHistoryTx(ctx, tx, orderID, expect, next, actor, note, now)
}

func insertHistoryTx(ctx context.Context, tx *sql.Tx, orderID string, old, next order.Status, actor, note, at string) error {
	const q = `
		INSERT INTO order_status_history (order_id, old_status, new_status, actor, note, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, orderID, string(old), string(next), actor, note, at); err != nil {
		return fmt.Errorf("sqlite: insert history row: %w", err)
	}
	return nil
}

// HasSuccessfulPayment reports whether the order's payment reached a success
// state. Refunded states count: money moved.
func (s *Store) HasSuccessfulPayment(ctx context.Context, orderID string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM payments WHERE order_id = ?`, orderID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: read payment status: %w", err)
	}
	return payment.Status(status).Succeeded(), nil
}

// ApplyRefund writes the order refund, the payment-side refund and the
// payment status flip in one transaction. Full refunds also move the order
// to refunded with a history row.
func (s *Store) ApplyRefund(ctx context.Context, r order.Refund, actor string) (order.Refund, error) {
	now := time.Now()
	nowStr := formatTime(now)

	r.ID = uuid.NewString()
	r.Status = order.RefundCompleted
	r.ProcessedBy = actor
	r.ProcessedAt = &now
	r.CreatedAt = now
	r.UpdatedAt = now

	err := s.execTx(ctx, func(tx *sql.Tx) error {
		const insRefund = `
			INSERT INTO refunds (id, order_id, refund_type, amount, currency, reason, status, processed_by, processed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insRefund,
			r.ID, r.OrderID, string(r.Type), r.Amount.Amount, r.Amount.Currency,
			r.Reason, string(r.Status), r.ProcessedBy, nowStr, nowStr, nowStr,
		); err != nil {
			return fmt.Errorf("sqlite: insert refund: %w", err)
		}

		var paymentID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM payments WHERE order_id = ?`, r.OrderID).Scan(&paymentID)
		if errors.Is(err, sql.ErrNoRows) {
			return payment.ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("sqlite: read payment for refund: %w", err)
		}

		nextPayment := payment.StatusPartiallyRefunded
		if r.Type == order.RefundFull {
			nextPayment = payment.StatusRefunded
		}
		const updPayment = `UPDATE payments SET status = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, updPayment, string(nextPayment), nowStr, paymentID); err != nil {
			return fmt.Errorf("sqlite: update payment for refund: %w", err)
		}

		const insPayRefund = `
			INSERT INTO payment_refunds (id, payment_id, refund_id, amount, currency, status, created_at, updated_at, processed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insPayRefund,
			uuid.NewString(), paymentID, r.ID, r.Amount.Amount, r.Amount.Currency,
			string(payment.RefundCompleted), nowStr, nowStr, nowStr,
		); err != nil {
			return fmt.Errorf("sqlite: insert payment refund: %w", err)
		}

		var current string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, r.OrderID).Scan(&current); err != nil {
			return fmt.Errorf("sqlite: read order status: %w", err)
		}

		if r.Type == order.RefundFull {
			return updateOrderStatusTx(ctx, tx, r.OrderID, order.Status(current), order.StatusRefunded, actor, r.Reason)
		}

		// Partial refund: the order status stays, the audit trail still
		// records that money moved back.
		note := fmt.Sprintf("Partial refund of %s", r.Amount)
		return insertHistoryTx(ctx, tx, r.OrderID, order.Status(current), order.Status(current), actor, note, nowStr)
	})
	if err != nil {
		return order.Refund{}, err
	}
	return r, nil
}

// CreateOrderFromCart implements checkout.Repo: the whole conversion is one
// transaction. The year-scoped order number is allocated with a single
// upsert, stock is decremented with a guarded UPDATE so a concurrent
// checkout of the last unit loses cleanly, and the cart is cleared last.
func (s *Store) CreateOrderFromCart(ctx context.Context, o order.Order, cartID string) (order.Order, error) {
	now := time.Now()
	nowStr := formatTime(now)

	o.ID = uuid.NewString()
	o.CreatedAt = now
	o.UpdatedAt = now

	err := s.execTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		const bump = `
			INSERT INTO order_sequences (year, last_seq) VALUES (?, 1)
			ON CONFLICT (year) DO UPDATE SET last_seq = last_seq + 1
			RETURNING last_seq`
		year := now.UTC().Year()
		if err := tx.QueryRowContext(ctx, bump, year).Scan(&seq); err != nil {
			return fmt.Errorf("sqlite: allocate order number: %w", err)
		}
		o.OrderNumber = fmt.Sprintf("SC%04d%06d", year, seq)

		shippingJSON, err := json.Marshal(o.ShippingAddress)
		if err != nil {
			return fmt.Errorf("encode shipping address: %w", err)
		}
		billingJSON, err := json.Marshal(o.BillingAddress)
		if err != nil {
			return fmt.Errorf("encode billing address: %w", err)
		}

		const insOrder = `
			INSERT INTO orders (
				id, order_number, user_id, status, currency,
				subtotal, shipping_cost, tax_amount, discount_amount, total_amount,
				shipping_address, billing_address, shipping_method_id, customer_notes,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insOrder,
			o.ID, o.OrderNumber, o.UserID, string(o.Status), o.Currency,
			o.Subtotal, o.ShippingCost, o.TaxAmount, o.DiscountAmount, o.TotalAmount,
			string(shippingJSON), string(billingJSON), o.ShippingMethodID, o.CustomerNotes,
			nowStr, nowStr,
		); err != nil {
			return fmt.Errorf("sqlite: insert order: %w", err)
		}

		const decrement = `
			UPDATE artworks
			SET    stock_quantity = stock_quantity - ?, updated_at = ?
			WHERE  id = ? AND status = 'active' AND stock_quantity >= ?`
		const markSold = `
			UPDATE artworks SET status = 'sold', updated_at = ?
			WHERE  id = ? AND stock_quantity = 0`
		const insItem = `
			INSERT INTO order_items (id, order_id, artwork_id, quantity, unit_price, tax_rate, snapshot, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

		for i := range o.Items {
			it := &o.Items[i]

			res, err := tx.ExecContext(ctx, decrement, it.Quantity, nowStr, it.ArtworkID, it.Quantity)
			if err != nil {
				return fmt.Errorf("sqlite: decrement stock: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("artwork %s: %w", it.ArtworkID, catalog.ErrArtworkUnavailable)
			}
			if _, err := tx.ExecContext(ctx, markSold, nowStr, it.ArtworkID); err != nil {
				return fmt.Errorf("sqlite: mark artwork sold: %w", err)
			}

			it.ID = uuid.NewString()
			it.OrderID = o.ID
			it.CreatedAt = now

			snapshotJSON, err := json.Marshal(it.Snapshot)
			if err != nil {
				return fmt.Errorf("encode artwork snapshot: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insItem,
				it.ID, o.ID, it.ArtworkID, it.Quantity, it.UnitPrice.Amount, it.TaxRate,
				string(snapshotJSON), nowStr,
			); err != nil {
				return fmt.Errorf("sqlite: insert order item: %w", err)
			}
		}

		if err := insertHistoryTx(ctx, tx, o.ID, "", o.Status, "customer", "Order created from cart", nowStr); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
			return fmt.Errorf("sqlite: clear cart: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, nowStr, cartID); err != nil {
			return fmt.Errorf("sqlite: touch cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}
