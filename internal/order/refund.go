package order

import (
	"time"

	"github.com/safaricrafts/order-core/internal/money"
)

type RefundType string

const (
	RefundFull    RefundType = "full"
	RefundPartial RefundType = "partial"
)

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundApproved   RefundStatus = "approved"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundRejected   RefundStatus = "rejected"
)

// Refund is the order-side refund record. The payment side keeps its own
// PaymentRefund row referencing this one.
type Refund struct {
	ID          string
	OrderID     string
	Type        RefundType
	Amount      money.Money
	Reason      string
	Status      RefundStatus
	ProcessedBy string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
