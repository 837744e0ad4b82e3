package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/payment"
)

const paymentColumns = `
	id, order_id, provider, method, provider_ref, amount, currency, status,
	failure_reason, failure_code, provider_data, created_at, updated_at, processed_at`

func scanPayment(row rowScanner) (payment.Payment, error) {
	var (
		p                    payment.Payment
		providerRef          sql.NullString
		amount               int64
		currency             string
		status               string
		providerData         string
		createdAt, updatedAt string
		processedAt          sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Provider, &p.Method, &providerRef, &amount, &currency, &status,
		&p.FailureReason, &p.FailureCode, &providerData, &createdAt, &updatedAt, &processedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Payment{}, payment.ErrPaymentNotFound
	}
	if err != nil {
		return payment.Payment{}, fmt.Errorf("sqlite: scan payment: %w", err)
	}

	p.ProviderRef = providerRef.String
	p.Amount = money.New(currency, amount)
	p.Status = payment.Status(status)
	if err := json.Unmarshal([]byte(providerData), &p.ProviderData); err != nil {
		return payment.Payment{}, fmt.Errorf("sqlite: decode provider data: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return payment.Payment{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return payment.Payment{}, err
	}
	if p.ProcessedAt, err = parseNullTime(processedAt); err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

// Create inserts the pending payment. The unique order_id column enforces
// one payment per order; losing that race maps to ErrPaymentExists.
func (s *Store) Create(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	now := time.Now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.ProviderData == nil {
		p.ProviderData = map[string]any{}
	}

	data, err := json.Marshal(p.ProviderData)
	if err != nil {
		return payment.Payment{}, fmt.Errorf("encode provider data: %w", err)
	}

	const q = `
		INSERT INTO payments (id, order_id, provider, method, amount, currency, status, provider_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	nowStr := formatTime(now)
	_, err = s.db.ExecContext(ctx, q,
		p.ID, p.OrderID, p.Provider, p.Method, p.Amount.Amount, p.Amount.Currency,
		string(p.Status), string(data), nowStr, nowStr,
	)
	if isUniqueViolation(err) {
		return payment.Payment{}, payment.ErrPaymentExists
	}
	if err != nil {
		return payment.Payment{}, fmt.Errorf("sqlite: insert payment: %w", err)
	}
	return p, nil
}

func (s *Store) ByID(ctx context.Context, id string) (payment.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	return scanPayment(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) ByOrderID(ctx context.Context, orderID string) (payment.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = ?`
	return scanPayment(s.db.QueryRowContext(ctx, q, orderID))
}

// MarkProcessing moves a dispatched payment to processing and merges the
// gateway's reference data into provider_data.
func (s *Store) MarkProcessing(ctx context.Context, id string, providerData map[string]any) error {
	p, err := s.ByID(ctx, id)
	if err != nil {
		return err
	}
	for k, v := range providerData {
		p.ProviderData[k] = v
	}
	data, err := json.Marshal(p.ProviderData)
	if err != nil {
		return fmt.Errorf("encode provider data: %w", err)
	}

	const q = `UPDATE payments SET status = ?, provider_data = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q,
		string(payment.StatusProcessing), string(data), formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("sqlite: mark payment processing: %w", err)
	}
	return nil
}

const webhookColumns = `
	id, provider, event_id, event_type, raw_data, payment_id,
	processed, processing_attempts, last_processing_error, created_at, processed_at`

func scanWebhookEvent(row rowScanner) (payment.WebhookEvent, error) {
	var (
		ev          payment.WebhookEvent
		rawData     string
		paymentID   sql.NullString
		processed   int
		createdAt   string
		processedAt sql.NullString
	)
	err := row.Scan(
		&ev.ID, &ev.Provider, &ev.EventID, &ev.EventType, &rawData, &paymentID,
		&processed, &ev.ProcessingAttempts, &ev.LastProcessingError, &createdAt, &processedAt,
	)
	if err != nil {
		return payment.WebhookEvent{}, err
	}

	ev.RawData = json.RawMessage(rawData)
	ev.PaymentID = paymentID.String
	ev.Processed = processed != 0
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return payment.WebhookEvent{}, err
	}
	if ev.ProcessedAt, err = parseNullTime(processedAt); err != nil {
		return payment.WebhookEvent{}, err
	}
	return ev, nil
}

// RecordWebhookEvent appends the event to the webhook log. When the insert
// loses the unique race on event_id (a provider replay), the stored row is
// returned with existing=true and nothing is written.
func (s *Store) RecordWebhookEvent(ctx context.Context, ev payment.WebhookEvent) (payment.WebhookEvent, bool, error) {
	raw := ev.RawData
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var paymentID any
	if ev.PaymentID != "" {
		paymentID = ev.PaymentID
	}

	const q = `
		INSERT INTO payment_webhooks (provider, event_id, event_type, raw_data, payment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		ev.Provider, ev.EventID, ev.EventType, string(raw), paymentID, formatTime(time.Now()),
	)
	if isUniqueViolation(err) {
		stored, getErr := s.webhookByEventID(ctx, ev.EventID)
		if getErr != nil {
			return payment.WebhookEvent{}, false, getErr
		}
		return stored, true, nil
	}
	if err != nil {
		return payment.WebhookEvent{}, false, fmt.Errorf("sqlite: insert webhook event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return payment.WebhookEvent{}, false, fmt.Errorf("sqlite: webhook row id: %w", err)
	}
	ev.ID = id
	ev.RawData = raw
	return ev, false, nil
}

func (s *Store) webhookByEventID(ctx context.Context, eventID string) (payment.WebhookEvent, error) {
	q := `SELECT ` + webhookColumns + ` FROM payment_webhooks WHERE event_id = ?`
	ev, err := scanWebhookEvent(s.db.QueryRowContext(ctx, q, eventID))
	if err != nil {
		return payment.WebhookEvent{}, fmt.Errorf("sqlite: get webhook event %q: %w", eventID, err)
	}
	return ev, nil
}

func (s *Store) MarkWebhookProcessed(ctx context.Context, eventRowID int64) error {
	const q = `UPDATE payment_webhooks SET processed = 1, processed_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, formatTime(time.Now()), eventRowID); err != nil {
		return fmt.Errorf("sqlite: mark webhook processed: %w", err)
	}
	return nil
}

func (s *Store) RecordWebhookFailure(ctx context.Context, eventRowID int64, msg string) error {
	const q = `
		UPDATE payment_webhooks
		SET    processing_attempts = processing_attempts + 1, last_processing_error = ?
		WHERE  id = ?`
	if _, err := s.db.ExecContext(ctx, q, msg, eventRowID); err != nil {
		return fmt.Errorf("sqlite: record webhook failure: %w", err)
	}
	return nil
}

// UnprocessedEvents returns events the sweeper should retry: durably
// recorded, not yet processed, under the attempt cap. Oldest first so
// retries stay roughly in arrival order.
func (s *Store) UnprocessedEvents(ctx context.Context, maxAttempts, limit int) ([]payment.WebhookEvent, error) {
	q := `SELECT ` + webhookColumns + `
		FROM   payment_webhooks
		WHERE  processed = 0 AND processing_attempts < ?
		ORDER  BY id
		LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list unprocessed webhooks: %w", err)
	}
	defer rows.Close()

	var events []payment.WebhookEvent
	for rows.Next() {
		ev, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan webhook event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ApplyCompleted is the success path in one transaction: payment →
// completed with the provider reference and processed stamp, order →
// confirmed when the edge is legal, webhook row → processed. Either all of
// it lands or none.
func (s *Store) ApplyCompleted(ctx context.Context, paymentID, providerRef string, eventRowID int64) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		nowStr := formatTime(time.Now())

		var orderID, curStatus string
		err := tx.QueryRowContext(ctx, `SELECT order_id, status FROM payments WHERE id = ?`, paymentID).Scan(&orderID, &curStatus)
		if errors.Is(err, sql.ErrNoRows) {
			return payment.ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("sqlite: read payment: %w", err)
		}
		// Re-check the edge under the transaction; a stale success retry
		// after a refund must not pull the payment back to completed.
		if !payment.CanTransition(payment.Status(curStatus), payment.StatusCompleted) {
			return markWebhookProcessedTx(ctx, tx, eventRowID, paymentID, nowStr)
		}

		var ref any
		if providerRef != "" {
			ref = providerRef
		}
		const updPayment = `
			UPDATE payments
			SET    status = ?, provider_ref = COALESCE(?, provider_ref),
			       failure_reason = '', failure_code = '',
			       processed_at = ?, updated_at = ?
			WHERE  id = ?`
		if _, err := tx.ExecContext(ctx, updPayment,
			string(payment.StatusCompleted), ref, nowStr, nowStr, paymentID,
		); err != nil {
			return fmt.Errorf("sqlite: complete payment: %w", err)
		}

		var orderStatus string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, orderID).Scan(&orderStatus); err != nil {
			return fmt.Errorf("sqlite: read order status: %w", err)
		}
		// Confirm the order only when the edge is legal; a completed webhook
		// replayed after the order moved on must not drag it backwards.
		if order.CanTransition(order.Status(orderStatus), order.StatusConfirmed) {
			if err := updateOrderStatusTx(ctx, tx, orderID,
				order.Status(orderStatus), order.StatusConfirmed, "system", "Payment completed"); err != nil {
				return err
			}
		}

		return markWebhookProcessedTx(ctx, tx, eventRowID, paymentID, nowStr)
	})
}

// ApplyFailed records the failure on the payment and marks the webhook
// processed. The order stays pending so the customer can retry.
func (s *Store) ApplyFailed(ctx context.Context, paymentID, reason, code string, eventRowID int64) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		nowStr := formatTime(time.Now())

		cur, err := paymentStatusTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if !payment.CanTransition(cur, payment.StatusFailed) {
			return markWebhookProcessedTx(ctx, tx, eventRowID, paymentID, nowStr)
		}

		const q = `
			UPDATE payments
			SET    status = ?, failure_reason = ?, failure_code = ?, updated_at = ?
			WHERE  id = ?`
		if _, err := tx.ExecContext(ctx, q,
			string(payment.StatusFailed), reason, code, nowStr, paymentID,
		); err != nil {
			return fmt.Errorf("sqlite: fail payment: %w", err)
		}

		return markWebhookProcessedTx(ctx, tx, eventRowID, paymentID, nowStr)
	})
}

// SetStatus handles the remaining mapped statuses (processing, cancelled):
// payment update plus webhook stamp, no order movement.
func (s *Store) SetStatus(ctx context.Context, paymentID string, st payment.Status, eventRowID int64) error {
	return s.execTx(ctx, func(tx *sql.Tx) error {
		nowStr := formatTime(time.Now())

		cur, err := paymentStatusTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if !payment.CanTransition(cur, st) {
			return markWebhookProcessedTx(ctx, tx, eventRowID, paymentID, nowStr)
		}

		const q = `UPDATE payments SET status = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, string(st), nowStr, paymentID); err != nil {
			return fmt.Errorf("sqlite: set payment status: %w", err)
		}

		return markWebhookProcessedTx(ctx, tx, eventRowID, paymentID, nowStr)
	})
}

func paymentStatusTx(ctx context.Context, tx *sql.Tx, paymentID string) (payment.Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = ?`, paymentID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", payment.ErrPaymentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: read payment status: %w", err)
	}
	return payment.Status(status), nil
}

// markWebhookProcessedTx stamps the event and backfills payment_id, which is
// how orphan events recorded before their payment existed get correlated once
// the sweeper resolves them.
func markWebhookProcessedTx(ctx context.Context, tx *sql.Tx, eventRowID int64, paymentID, at string) error {
	const q = `
		UPDATE payment_webhooks
		SET    processed = 1, payment_id = COALESCE(payment_id, ?), processed_at = ?
		WHERE  id = ?`
	if _, err := tx.ExecContext(ctx, q, paymentID, at, eventRowID); err != nil {
		return fmt.Errorf("sqlite: mark webhook processed: %w", err)
	}
	return nil
}
