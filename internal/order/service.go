package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/pkg/locks"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidTransition   = errors.New("illegal status transition")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	ErrOrderNotRefundable  = errors.New("order cannot be refunded")
	ErrRefundExceedsTotal  = errors.New("refund amount exceeds order total")
	// ErrStatusConflict is returned by the repository when the status read
	// inside the transaction no longer matches what the caller validated
	// against. With the per-order lock held this should not fire; it is the
	// backstop against lost updates.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Repo is the persistence port. UpdateStatus writes the new status and the
// history row in a single transaction, re-checking inside the transaction
// that the current status still equals expect.
type Repo interface {
	Get(ctx context.Context, id string) (Order, error)
	History(ctx context.Context, orderID string) ([]HistoryEntry, error)
	UpdateStatus(ctx context.Context, orderID string, expect, next Status, actor, note string) error
	HasSuccessfulPayment(ctx context.Context, orderID string) (bool, error)
	// ApplyRefund atomically writes the refund row, moves the order to
	// refunded with a history row (full refunds only; partial refunds leave
	// the order status alone), and flips the payment to
	// refunded/partially_refunded with its payment-side refund record.
	ApplyRefund(ctx context.Context, r Refund, actor string) (Refund, error)
}

// StateMachine owns every order status mutation. All writes go through the
// per-order lock so that validation and the status write form one critical
// section.
type StateMachine struct {
	repo  Repo
	locks *locks.Keyed
}

func NewStateMachine(repo Repo, keyed *locks.Keyed) *StateMachine {
	return &StateMachine{repo: repo, locks: keyed}
}

func (sm *StateMachine) Get(ctx context.Context, id string) (Order, error) {
	return sm.repo.Get(ctx, id)
}

func (sm *StateMachine) History(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	return sm.repo.History(ctx, orderID)
}

// Transition moves the order along a legal edge. Drivers are the payment
// reconciler (pending→confirmed), shipment creation (confirmed→processing)
// and carrier events (→shipped→delivered→completed).
func (sm *StateMachine) Transition(ctx context.Context, orderID string, next Status, actor, note string) (Order, error) {
	unlock := sm.locks.Lock(orderID)
	defer unlock()

	o, err := sm.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	if !CanTransition(o.Status, next) {
		return o, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, o.Status, next)
	}

	if err := sm.repo.UpdateStatus(ctx, orderID, o.Status, next, actor, note); err != nil {
		return o, err
	}

	slog.InfoContext(ctx, "order status changed",
		"order_id", orderID, "old_status", o.Status, "new_status", next, "actor", actor)

	return sm.repo.Get(ctx, orderID)
}

// Cancel is legal only from pending or confirmed, and only while no payment
// has succeeded. On failure the current order is returned so the caller can
// observe the post-transition state.
func (sm *StateMachine) Cancel(ctx context.Context, orderID, actor, note string) (Order, error) {
	unlock := sm.locks.Lock(orderID)
	defer unlock()

	o, err := sm.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	if !o.CanBeCancelled() {
		return o, fmt.Errorf("%w: status is %s", ErrOrderNotCancellable, o.Status)
	}

	paid, err := sm.repo.HasSuccessfulPayment(ctx, orderID)
	if err != nil {
		return o, err
	}
	if paid {
		return o, fmt.Errorf("%w: payment already completed", ErrOrderNotCancellable)
	}

	if note == "" {
		note = "Order cancelled by customer"
	}
	if err := sm.repo.UpdateStatus(ctx, orderID, o.Status, StatusCancelled, actor, note); err != nil {
		return o, err
	}

	slog.InfoContext(ctx, "order cancelled", "order_id", orderID, "old_status", o.Status)

	return sm.repo.Get(ctx, orderID)
}

// Refund is legal from confirmed, processing or shipped with a successful
// payment. Amount must not exceed the order total; amount == total makes a
// full refund, anything less a partial one.
func (sm *StateMachine) Refund(ctx context.Context, orderID string, amount int64, reason, actor string) (Refund, error) {
	unlock := sm.locks.Lock(orderID)
	defer unlock()

	o, err := sm.repo.Get(ctx, orderID)
	if err != nil {
		return Refund{}, err
	}

	if !o.CanBeRefunded() {
		return Refund{}, fmt.Errorf("%w: status is %s", ErrOrderNotRefundable, o.Status)
	}

	paid, err := sm.repo.HasSuccessfulPayment(ctx, orderID)
	if err != nil {
		return Refund{}, err
	}
	if !paid {
		return Refund{}, fmt.Errorf("%w: payment not completed", ErrOrderNotRefundable)
	}

	if amount <= 0 || amount > o.TotalAmount {
		return Refund{}, fmt.Errorf("%w: %d of %d %s", ErrRefundExceedsTotal, amount, o.TotalAmount, o.Currency)
	}

	rt := RefundPartial
	if amount == o.TotalAmount {
		rt = RefundFull
	}

	ref, err := sm.repo.ApplyRefund(ctx, Refund{
		OrderID: orderID,
		Type:    rt,
		Amount:  money.New(o.Currency, amount),
		Reason:  reason,
		Status:  RefundPending,
	}, actor)
	if err != nil {
		return Refund{}, err
	}

	slog.InfoContext(ctx, "order refunded",
		"order_id", orderID, "refund_id", ref.ID, "type", rt, "amount", amount)

	return ref, nil
}
