// Package order owns the order lifecycle: the status state machine, the
// append-only status history, and refunds. Orders are never physically
// deleted; cancellation and refund are states.
package order

import (
	"time"

	"github.com/safaricrafts/order-core/internal/money"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// transitions is the closed edge set of the state machine. Forward
// progression is driven by the payment reconciler and shipment events, never
// by direct user action; the side branches are cancel and refund.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusRefunded},
	StatusDelivered:  {StatusCompleted},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
	StatusRefunded:   nil,
}

// CanTransition reports whether from→to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Address is a point-in-time snapshot captured at checkout. Later edits to a
// user's address book never alter historical orders.
type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// ArtworkSnapshot freezes what was bought. Catalog edits after checkout must
// not retroactively change order history.
type ArtworkSnapshot struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

type Item struct {
	ID        string
	OrderID   string
	ArtworkID string
	Quantity  int32
	UnitPrice money.Money
	TaxRate   int64 // basis points
	Snapshot  ArtworkSnapshot
	CreatedAt time.Time
}

func (i Item) LineTotal() int64 {
	return i.UnitPrice.Amount * int64(i.Quantity)
}

type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	Status      Status
	Currency    string

	Subtotal       int64
	ShippingCost   int64
	TaxAmount      int64
	DiscountAmount int64
	TotalAmount    int64

	ShippingAddress  Address
	BillingAddress   Address
	ShippingMethodID string
	CustomerNotes    string

	Items []Item

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// TotalsConsistent checks the pricing invariant:
// total = subtotal + shipping + tax − discount.
func (o Order) TotalsConsistent() bool {
	return o.TotalAmount == o.Subtotal+o.ShippingCost+o.TaxAmount-o.DiscountAmount
}

func (o Order) CanBeCancelled() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

func (o Order) CanBeRefunded() bool {
	switch o.Status {
	case StatusConfirmed, StatusProcessing, StatusShipped:
		return true
	}
	return false
}

// HistoryEntry is one row of the immutable audit trail. Entries are only
// ever appended.
type HistoryEntry struct {
	ID        int64
	OrderID   string
	OldStatus Status
	NewStatus Status
	Actor     string
	Note      string
	ChangedAt time.Time
}
