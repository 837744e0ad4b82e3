package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/pkg/locks"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrPaymentExists     = errors.New("payment already exists for order")
	ErrMissingExternalID = errors.New("missing externalId")
	ErrOrderNotPayable   = errors.New("order is not payable")
)

// Repo is the persistence port. The Apply* methods are composite: they update
// the payment, drive the order forward and mark the webhook row processed in
// one transaction; either everything lands or nothing does.
type Repo interface {
	Create(ctx context.Context, p Payment) (Payment, error)
	ByID(ctx context.Context, id string) (Payment, error)
	ByOrderID(ctx context.Context, orderID string) (Payment, error)
	MarkProcessing(ctx context.Context, id string, providerData map[string]any) error

	// RecordWebhookEvent inserts the event, or returns the stored row when
	// the provider event id was seen before (existing=true).
	RecordWebhookEvent(ctx context.Context, ev WebhookEvent) (stored WebhookEvent, existing bool, err error)
	MarkWebhookProcessed(ctx context.Context, eventRowID int64) error
	RecordWebhookFailure(ctx context.Context, eventRowID int64, msg string) error
	UnprocessedEvents(ctx context.Context, maxAttempts, limit int) ([]WebhookEvent, error)

	ApplyCompleted(ctx context.Context, paymentID, providerRef string, eventRowID int64) error
	ApplyFailed(ctx context.Context, paymentID, reason, code string, eventRowID int64) error
	SetStatus(ctx context.Context, paymentID string, st Status, eventRowID int64) error
}

// Orders is the read side of the order context the payment service needs.
type Orders interface {
	Get(ctx context.Context, id string) (order.Order, error)
}

// Gateway is the outbound payment provider port. The call may block on the
// network, so it is always issued with no database lock held.
type Gateway interface {
	Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error)
}

type CheckoutRequest struct {
	AccountNumber string
	Amount        int64
	Currency      string
	ExternalID    string
	Provider      string
}

type CheckoutResponse struct {
	TransactionID string
	Message       string
}

// WebhookInput is the decoded provider callback. Raw retains the original
// body for the append-only log and for sweep replays.
type WebhookInput struct {
	TransactionID string
	ExternalID    string
	Status        string
	Amount        int64
	Message       string
	ErrorCode     string
	Raw           json.RawMessage
}

type WebhookResult struct {
	EventID       string
	Duplicate     bool
	Processed     bool
	PaymentStatus Status
}

type Service struct {
	repo    Repo
	orders  Orders
	gateway Gateway
	locks   *locks.Keyed
}

func NewService(repo Repo, orders Orders, gateway Gateway, keyed *locks.Keyed) *Service {
	return &Service{repo: repo, orders: orders, gateway: gateway, locks: keyed}
}

func (s *Service) ByID(ctx context.Context, id string) (Payment, error) {
	return s.repo.ByID(ctx, id)
}

// Initialize creates the pending payment for an order. Amount and currency
// are copied from the order; exactly one payment exists per order, so a
// second call returns the existing record.
func (s *Service) Initialize(ctx context.Context, orderID, provider, method string) (Payment, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	if o.Status != order.StatusPending {
		return Payment{}, fmt.Errorf("%w: order is %s", ErrOrderNotPayable, o.Status)
	}

	if existing, err := s.repo.ByOrderID(ctx, orderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return Payment{}, err
	}

	p, err := s.repo.Create(ctx, Payment{
		OrderID:  orderID,
		Provider: provider,
		Method:   method,
		Amount:   money.New(o.Currency, o.TotalAmount),
		Status:   StatusPending,
	})
	if err != nil {
		return Payment{}, err
	}

	slog.InfoContext(ctx, "payment initialized",
		"payment_id", p.ID, "order_id", orderID, "provider", provider, "method", method)

	return p, nil
}

// InitiateMobile dispatches an MNO checkout request to the gateway and moves
// the payment to processing once the provider has accepted the push. On
// gateway failure the payment stays pending; never assume success on
// timeout; the attempt is safe to retry.
func (s *Service) InitiateMobile(ctx context.Context, paymentID, phoneNumber, mnoProvider string) (Payment, CheckoutResponse, error) {
	p, err := s.repo.ByID(ctx, paymentID)
	if err != nil {
		return Payment{}, CheckoutResponse{}, err
	}
	if p.Status != StatusPending && p.Status != StatusProcessing {
		return p, CheckoutResponse{}, fmt.Errorf("%w: payment is %s", ErrOrderNotPayable, p.Status)
	}

	resp, err := s.gateway.Checkout(ctx, CheckoutRequest{
		AccountNumber: phoneNumber,
		Amount:        p.Amount.Amount,
		Currency:      p.Amount.Currency,
		ExternalID:    p.ID,
		Provider:      mnoProvider,
	})
	if err != nil {
		return p, CheckoutResponse{}, fmt.Errorf("gateway checkout: %w", err)
	}

	if err := s.repo.MarkProcessing(ctx, p.ID, map[string]any{
		"checkout_ref":   resp.TransactionID,
		"mno_provider":   mnoProvider,
		"account_suffix": suffix(phoneNumber),
	}); err != nil {
		return p, resp, err
	}

	slog.InfoContext(ctx, "mobile payment dispatched",
		"payment_id", p.ID, "provider", mnoProvider, "checkout_ref", resp.TransactionID)

	return s.mustReload(ctx, p.ID), resp, nil
}

// HandleWebhook processes one inbound provider callback.
//
// The contract: the event is durably recorded before any side effect; a
// replayed event id that already processed is acknowledged without
// re-applying anything; an unknown externalId is recorded for later
// reconciliation but rejected with ErrPaymentNotFound; a downstream failure
// leaves the event unprocessed with attempts incremented so the sweeper can
// retry it.
func (s *Service) HandleWebhook(ctx context.Context, in WebhookInput) (WebhookResult, error) {
	if in.ExternalID == "" {
		return WebhookResult{}, ErrMissingExternalID
	}

	eventID := in.TransactionID
	if eventID == "" {
		eventID = "azam_" + in.ExternalID
	}

	var paymentID string
	p, err := s.repo.ByID(ctx, in.ExternalID)
	switch {
	case err == nil:
		paymentID = p.ID
	case errors.Is(err, ErrPaymentNotFound):
		// Store the orphan event so a later sweep can pick it up once the
		// payment is resolvable, then reject.
		if _, _, recErr := s.repo.RecordWebhookEvent(ctx, WebhookEvent{
			Provider:  ProviderAzamPay,
			EventID:   eventID,
			EventType: "payment_status_update",
			RawData:   in.Raw,
		}); recErr != nil {
			return WebhookResult{}, recErr
		}
		slog.WarnContext(ctx, "webhook for unknown payment", "external_id", in.ExternalID, "event_id", eventID)
		return WebhookResult{EventID: eventID}, ErrPaymentNotFound
	default:
		return WebhookResult{}, err
	}

	ev, existing, err := s.repo.RecordWebhookEvent(ctx, WebhookEvent{
		Provider:  p.Provider,
		EventID:   eventID,
		EventType: "payment_status_update",
		RawData:   in.Raw,
		PaymentID: paymentID,
	})
	if err != nil {
		return WebhookResult{}, err
	}
	if existing && ev.Processed {
		slog.InfoContext(ctx, "webhook replay acknowledged", "event_id", eventID, "payment_id", paymentID)
		return WebhookResult{EventID: eventID, Duplicate: true, Processed: true, PaymentStatus: p.Status}, nil
	}

	res := s.apply(ctx, p, in, ev)
	return res, nil
}

// apply maps the provider status and performs the transition. Failures here
// are recorded on the event row rather than returned: the webhook has been
// durably accepted and the sweeper owns retries.
func (s *Service) apply(ctx context.Context, p Payment, in WebhookInput, ev WebhookEvent) WebhookResult {
	res := WebhookResult{EventID: ev.EventID, PaymentStatus: p.Status}

	if in.Amount != 0 && in.Amount != p.Amount.Amount {
		slog.WarnContext(ctx, "webhook amount mismatch",
			"payment_id", p.ID, "payment_amount", p.Amount.Amount, "webhook_amount", in.Amount)
	}

	next, known := MapProviderStatus(in.Status)
	if !known {
		// Record-only: keep the raw event, leave the payment alone.
		slog.WarnContext(ctx, "unrecognized provider status", "status", in.Status, "event_id", ev.EventID)
		if err := s.repo.MarkWebhookProcessed(ctx, ev.ID); err != nil {
			s.recordFailure(ctx, ev.ID, err)
			return res
		}
		res.Processed = true
		return res
	}

	if !CanTransition(p.Status, next) {
		// Self-edges and stale out-of-order events land here: a late
		// "pending" after completion, or a retried "success" after a
		// refund. Acknowledge without moving the payment.
		slog.InfoContext(ctx, "webhook status not applicable",
			"payment_id", p.ID, "payment_status", p.Status, "webhook_status", next, "event_id", ev.EventID)
		if err := s.repo.MarkWebhookProcessed(ctx, ev.ID); err != nil {
			s.recordFailure(ctx, ev.ID, err)
			return res
		}
		res.Processed = true
		return res
	}

	unlock := s.locks.Lock(p.OrderID)
	defer unlock()

	var err error
	switch next {
	case StatusCompleted:
		err = s.repo.ApplyCompleted(ctx, p.ID, in.TransactionID, ev.ID)
	case StatusFailed:
		reason := in.Message
		if reason == "" {
			reason = "Payment failed"
		}
		code := in.ErrorCode
		if code == "" {
			code = "UNKNOWN"
		}
		err = s.repo.ApplyFailed(ctx, p.ID, reason, code, ev.ID)
	default:
		err = s.repo.SetStatus(ctx, p.ID, next, ev.ID)
	}
	if err != nil {
		s.recordFailure(ctx, ev.ID, err)
		return res
	}

	slog.InfoContext(ctx, "payment status updated",
		"payment_id", p.ID, "old_status", p.Status, "new_status", next, "event_id", ev.EventID)

	res.Processed = true
	res.PaymentStatus = next
	return res
}

func (s *Service) recordFailure(ctx context.Context, eventRowID int64, cause error) {
	slog.ErrorContext(ctx, "webhook processing failed", "event_row", eventRowID, "error", cause)
	if err := s.repo.RecordWebhookFailure(ctx, eventRowID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to record webhook failure", "event_row", eventRowID, "error", err)
	}
}

// Sweep replays webhook events that were durably recorded but not fully
// processed (transient downstream errors, or callbacks that arrived before
// their payment existed). Run it periodically.
func (s *Service) Sweep(ctx context.Context, maxAttempts, limit int) (int, error) {
	events, err := s.repo.UnprocessedEvents(ctx, maxAttempts, limit)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, ev := range events {
		in, err := decodeWebhookBody(ev.RawData)
		if err != nil {
			s.recordFailure(ctx, ev.ID, fmt.Errorf("decode raw event: %w", err))
			continue
		}

		paymentID := ev.PaymentID
		if paymentID == "" {
			paymentID = in.ExternalID
		}
		p, err := s.repo.ByID(ctx, paymentID)
		if err != nil {
			s.recordFailure(ctx, ev.ID, err)
			continue
		}

		if res := s.apply(ctx, p, in, ev); res.Processed {
			retried++
		}
	}

	if retried > 0 {
		slog.InfoContext(ctx, "reconciliation sweep replayed events", "count", retried)
	}
	return retried, nil
}

// RunSweeper blocks, sweeping on every tick until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, maxAttempts, limit int) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx, maxAttempts, limit); err != nil {
				slog.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
			}
		}
	}
}

func (s *Service) mustReload(ctx context.Context, id string) Payment {
	p, err := s.repo.ByID(ctx, id)
	if err != nil {
		return Payment{ID: id}
	}
	return p
}

func suffix(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return phone[len(phone)-4:]
}
