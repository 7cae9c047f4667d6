// README: Order store contract; every status mutation is a compare-and-set.
package order

import (
	"context"
	"time"

	"caredispatch/internal/types"
)

// Store persists orders. All status-changing methods take the expected
// current status and status version and report false when the record moved
// underneath the caller; they never write blindly (the admin override is
// the single documented exception).
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)

	// UpdateStatus performs the optimistic status transition.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)

	// Assign moves the order to assigned and records the worker snapshot
	// and acceptance time in the same atomic step.
	Assign(ctx context.Context, id types.ID, from Status, version int, snap WorkerSnapshot, acceptedAt time.Time) (bool, error)

	// AddOffers moves a searching order to notified, recording the offer
	// entries and the acceptance deadline.
	AddOffers(ctx context.Context, id types.ID, version int, offers []Offer, deadline time.Time) (bool, error)

	// AcceptOffer atomically marks the worker's pending offer accepted and
	// assigns the order. Exactly one concurrent caller can win.
	AcceptOffer(ctx context.Context, id, workerID types.ID, version int, snap WorkerSnapshot, acceptedAt time.Time) (bool, error)

	// DenyOffer marks the worker's pending offer denied and returns how
	// many offers are still pending. ok is false when the entry was not
	// pending (or absent).
	DenyOffer(ctx context.Context, id, workerID types.ID) (pending int, ok bool, err error)

	ListByCustomer(ctx context.Context, customerID types.ID) ([]*Order, error)
	ListByWorker(ctx context.Context, workerID types.ID) ([]*Order, error)
	// ActiveByCustomer returns the most recent non-terminal order, or
	// ErrNotFound.
	ActiveByCustomer(ctx context.Context, customerID types.ID) (*Order, error)
	// ListOpenOffers returns notified orders holding a still-pending offer
	// for the worker with an unexpired deadline.
	ListOpenOffers(ctx context.Context, workerID types.ID, now time.Time) ([]*Order, error)
	// ListExpiredNotified feeds the timeout sweeper.
	ListExpiredNotified(ctx context.Context, now time.Time, limit int) ([]*Order, error)

	// AdminUpdate force-sets status and/or the assigned worker snapshot,
	// bypassing the transition guard. Deliberate escape hatch.
	AdminUpdate(ctx context.Context, id types.ID, status *Status, snap *WorkerSnapshot) (*Order, error)

	AppendEvent(ctx context.Context, e *Event) error
}
