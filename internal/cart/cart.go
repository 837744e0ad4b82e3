// Package cart owns the mutable per-user shopping cart. A cart is created
// lazily on first access and cleared, not deleted, on successful checkout.
package cart

import (
	"time"

	"github.com/safaricrafts/order-core/internal/money"
)

type Item struct {
	ArtworkID string
	Quantity  int32
	// UnitPrice is the price snapshot taken when the item was added. Display
	// only: checkout re-reads live prices at conversion time.
	UnitPrice money.Money
}

type Cart struct {
	ID        string
	UserID    string
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c Cart) TotalItems() int32 {
	var n int32
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}
