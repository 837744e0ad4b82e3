// Package payment tracks the one payment attached to an order and reconciles
// asynchronous provider callbacks against it. Webhook delivery is assumed
// at-least-once and possibly out of order; idempotency is the sole
// correctness mechanism.
package payment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/safaricrafts/order-core/internal/money"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// Succeeded reports whether the payment reached a success state. Refunded
// states count: money did move.
func (s Status) Succeeded() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

func (s Status) Refundable() bool {
	return s == StatusCompleted || s == StatusPartiallyRefunded
}

// statusTransitions is the directed payment state machine. Failed and
// cancelled stay open forward (a retried charge can still go through), but
// nothing moves backwards out of completed or the refund states: webhook
// delivery is at-least-once and out of order, and a stale event must never
// regress a settled payment.
var statusTransitions = map[Status][]Status{
	StatusPending:           {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing:        {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:            {StatusProcessing, StatusCompleted},
	StatusCancelled:         {StatusProcessing, StatusCompleted},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusRefunded},
	StatusRefunded:          {},
}

// CanTransition reports whether from → to is a legal payment edge.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Providers and methods, mirroring what the marketplace actually accepts.
const (
	ProviderAzamPay = "azampay"
	ProviderStripe  = "stripe"
	ProviderPayPal  = "paypal"

	MethodCard        = "card"
	MethodMpesa       = "mpesa"
	MethodAirtelMoney = "airtel_money"
	MethodTigoPesa    = "tigo_pesa"
)

type Payment struct {
	ID          string
	OrderID     string
	Provider    string
	Method      string
	ProviderRef string
	Amount      money.Money
	Status      Status

	FailureReason string
	FailureCode   string
	ProviderData  map[string]any

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// WebhookEvent is one row of the append-only provider callback log. EventID
// is provider-assigned and unique, which is what makes replays detectable.
type WebhookEvent struct {
	ID        int64
	Provider  string
	EventID   string
	EventType string
	RawData   json.RawMessage
	PaymentID string // empty when the callback could not be correlated yet

	Processed           bool
	ProcessingAttempts  int
	LastProcessingError string

	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
	RefundCancelled  RefundStatus = "cancelled"
)

// Refund is the payment-side mirror of an order refund.
type Refund struct {
	ID               string
	PaymentID        string
	OrderRefundID    string
	Amount           money.Money
	ProviderRefundID string
	Status           RefundStatus
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ProcessedAt      *time.Time
}

// statusMapping translates provider vocabulary to ours. Fixed table: an
// unrecognized provider status leaves the payment unchanged while the raw
// event is still recorded.
var statusMapping = map[string]Status{
	"success":    StatusCompleted,
	"successful": StatusCompleted,
	"completed":  StatusCompleted,
	"failed":     StatusFailed,
	"pending":    StatusProcessing,
	"processing": StatusProcessing,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
}

// MapProviderStatus returns the internal status for a provider-reported one.
func MapProviderStatus(provider string) (Status, bool) {
	st, ok := statusMapping[strings.ToLower(strings.TrimSpace(provider))]
	return st, ok
}
